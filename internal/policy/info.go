package policy

import (
	"context"

	"codeberg.org/mutker/chassisctl/internal/cooling"
)

// Kind groups the info types a condition or action can depend on.
type Kind int

const (
	KindFan Kind = iota
	KindThermal
	KindPsu
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindFan:
		return "fan_info"
	case KindThermal:
		return "thermal_info"
	case KindPsu:
		return "psu_info"
	case KindControl:
		return "control_info"
	default:
		return "unknown"
	}
}

// Info is a named collection refreshed once per policy run.
type Info interface {
	Kind() Kind
	Collect(ctx context.Context)
}

type FanInfo struct {
	m    *cooling.Manager
	fans []*cooling.Fan
}

func (*FanInfo) Kind() Kind { return KindFan }

func (i *FanInfo) Collect(ctx context.Context) {
	i.m.UpdateFans(ctx)
	i.fans = i.m.Fans()
}

func (i *FanInfo) Fans() []*cooling.Fan {
	return i.fans
}

// ThermalInfo covers board thermals and transceiver thermals.
type ThermalInfo struct {
	m        *cooling.Manager
	thermals []cooling.ThermalEntity
}

func (*ThermalInfo) Kind() Kind { return KindThermal }

func (i *ThermalInfo) Collect(ctx context.Context) {
	i.m.UpdateThermals(ctx)
	i.m.UpdateXcvrs(ctx)
	i.thermals = i.m.Thermals()
}

func (i *ThermalInfo) Thermals() []cooling.ThermalEntity {
	return i.thermals
}

type PsuInfo struct {
	m    *cooling.Manager
	psus []*cooling.Psu
}

func (*PsuInfo) Kind() Kind { return KindPsu }

func (i *PsuInfo) Collect(ctx context.Context) {
	i.m.UpdatePsus(ctx)
	i.psus = i.m.Psus()
}

func (i *PsuInfo) Psus() []*cooling.Psu {
	return i.psus
}

// ControlInfo owns the cooling algorithm. Collecting it drives the entity
// manager's garbage collection.
type ControlInfo struct {
	m         *cooling.Manager
	algorithm *cooling.Algorithm
	collected bool
}

func (*ControlInfo) Kind() Kind { return KindControl }

func (i *ControlInfo) Collect(ctx context.Context) {
	i.collected = i.m.CollectIfDue(ctx)
}

func (i *ControlInfo) Algorithm() *cooling.Algorithm {
	return i.algorithm
}

// Collected reports whether the last collect reaped stale entities.
func (i *ControlInfo) Collected() bool {
	return i.collected
}

// Infos is the set of infos a policy file declares, collected control
// first and then in declaration order.
type Infos struct {
	order  []Info
	byKind map[Kind]Info
}

func newInfos() *Infos {
	return &Infos{byKind: make(map[Kind]Info)}
}

func (s *Infos) add(info Info) bool {
	if _, dup := s.byKind[info.Kind()]; dup {
		return false
	}
	s.byKind[info.Kind()] = info
	if info.Kind() == KindControl {
		s.order = append([]Info{info}, s.order...)
	} else {
		s.order = append(s.order, info)
	}
	return true
}

func (s *Infos) Has(k Kind) bool {
	_, ok := s.byKind[k]
	return ok
}

func (s *Infos) Collect(ctx context.Context) {
	for _, info := range s.order {
		info.Collect(ctx)
	}
}

func (s *Infos) Fan() *FanInfo {
	info, _ := s.byKind[KindFan].(*FanInfo)
	return info
}

func (s *Infos) Thermal() *ThermalInfo {
	info, _ := s.byKind[KindThermal].(*ThermalInfo)
	return info
}

func (s *Infos) Psu() *PsuInfo {
	info, _ := s.byKind[KindPsu].(*PsuInfo)
	return info
}

func (s *Infos) Control() *ControlInfo {
	info, _ := s.byKind[KindControl].(*ControlInfo)
	return info
}
