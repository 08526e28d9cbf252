package api

import (
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

func missing(name, field string) error {
	return errors.New().WithMessage(ErrFieldMissing, name+": "+field)
}

func notFound(name string) error {
	return errors.New().WithData(ErrNotFound, name)
}

func boolValue(name, field string, v *bool) (bool, error) {
	if v == nil {
		return false, missing(name, field)
	}
	return *v, nil
}

func floatValue(name, field string, v *float64) (float64, error) {
	if v == nil {
		return 0, missing(name, field)
	}
	return *v, nil
}

type fan struct {
	c    *Client
	name string
}

func (f *fan) doc() (FanDoc, error) {
	_, idx, err := f.c.snapshot()
	if err != nil {
		return FanDoc{}, err
	}
	d, ok := idx.fans[f.name]
	if !ok {
		return FanDoc{}, notFound(f.name)
	}
	return d, nil
}

func (f *fan) Name() string {
	return f.name
}

func (f *fan) Presence() (bool, error) {
	d, err := f.doc()
	if err != nil {
		return false, err
	}
	return boolValue(f.name, "presence", d.Presence)
}

func (f *fan) Status() (bool, error) {
	d, err := f.doc()
	if err != nil {
		return false, err
	}
	return boolValue(f.name, "status", d.Status)
}

func (f *fan) Speed() (float64, error) {
	d, err := f.doc()
	if err != nil {
		return 0, err
	}
	return floatValue(f.name, "speed", d.Speed)
}

func (f *fan) SetSpeed(speed float64) error {
	return f.c.setFanSpeed(f.name, speed)
}

type thermal struct {
	c    *Client
	name string
}

func (t *thermal) doc() (ThermalDoc, error) {
	_, idx, err := t.c.snapshot()
	if err != nil {
		return ThermalDoc{}, err
	}
	d, ok := idx.thermals[t.name]
	if !ok {
		return ThermalDoc{}, notFound(t.name)
	}
	return d, nil
}

func (t *thermal) Name() string {
	return t.name
}

func (t *thermal) Temperature() (float64, error) {
	d, err := t.doc()
	if err != nil {
		return 0, err
	}
	return floatValue(t.name, "temperature", d.Temperature)
}

func (t *thermal) HighThreshold() (float64, error) {
	d, err := t.doc()
	if err != nil {
		return 0, err
	}
	return floatValue(t.name, "high_threshold", d.HighThreshold)
}

func (t *thermal) HighCriticalThreshold() (float64, error) {
	d, err := t.doc()
	if err != nil {
		return 0, err
	}
	return floatValue(t.name, "critical_high_threshold", d.CriticalHighThreshold)
}

type psu struct {
	c        *Client
	name     string
	fans     []platform.FanDevice
	thermals []platform.TempDevice
}

func (p *psu) doc() (PsuDoc, error) {
	_, idx, err := p.c.snapshot()
	if err != nil {
		return PsuDoc{}, err
	}
	d, ok := idx.psus[p.name]
	if !ok {
		return PsuDoc{}, notFound(p.name)
	}
	return d, nil
}

func (p *psu) Name() string {
	return p.name
}

func (p *psu) Presence() (bool, error) {
	d, err := p.doc()
	if err != nil {
		return false, err
	}
	return boolValue(p.name, "presence", d.Presence)
}

func (p *psu) Status() (bool, error) {
	d, err := p.doc()
	if err != nil {
		return false, err
	}
	return boolValue(p.name, "status", d.Status)
}

func (p *psu) AllFans() ([]platform.FanDevice, error) {
	return p.fans, nil
}

func (p *psu) AllThermals() ([]platform.TempDevice, error) {
	return p.thermals, nil
}

type sfp struct {
	c    *Client
	name string
}

func (s *sfp) doc() (SfpDoc, error) {
	_, idx, err := s.c.snapshot()
	if err != nil {
		return SfpDoc{}, err
	}
	d, ok := idx.sfps[s.name]
	if !ok {
		return SfpDoc{}, notFound(s.name)
	}
	return d, nil
}

func (s *sfp) Name() string {
	return s.name
}

func (s *sfp) Presence() (bool, error) {
	d, err := s.doc()
	if err != nil {
		return false, err
	}
	return boolValue(s.name, "presence", d.Presence)
}

func (s *sfp) Temperature() (float64, error) {
	d, err := s.doc()
	if err != nil {
		return 0, err
	}
	return floatValue(s.name, "temperature", d.Temperature)
}

func (s *sfp) ThresholdInfo() (map[string]string, error) {
	d, err := s.doc()
	if err != nil {
		return nil, err
	}
	if d.Thresholds == nil {
		return nil, missing(s.name, "thresholds")
	}
	out := make(map[string]string, len(d.Thresholds))
	for k, v := range d.Thresholds {
		out[k] = v
	}
	return out, nil
}

type fanDrawer struct {
	name string
	fans []platform.FanDevice
}

func (d *fanDrawer) Name() string {
	return d.name
}

func (d *fanDrawer) AllFans() ([]platform.FanDevice, error) {
	return d.fans, nil
}

type module struct {
	name     string
	slot     int
	fans     []platform.FanDevice
	thermals []platform.TempDevice
}

func (m *module) Name() string {
	return m.name
}

func (m *module) Slot() int {
	return m.slot
}

func (m *module) AllFans() ([]platform.FanDevice, error) {
	return m.fans, nil
}

func (m *module) AllThermals() ([]platform.TempDevice, error) {
	return m.thermals, nil
}
