package cooling

// ThermalInfo is one sensor's position between its target and its
// overheat point. DeltaP is 0 at target, 1 at overheat and negative below
// target.
type ThermalInfo struct {
	Thermal  ThermalEntity
	Value    float64
	Target   float64
	Overheat float64
	Delta    float64
	DeltaP   float64
}

// NewThermalInfo returns false when the band is empty or unset: both
// bounds must be non-zero and overheat must lie above target.
func NewThermalInfo(th ThermalEntity, value, target, overheat float64) (ThermalInfo, bool) {
	if target == 0 || overheat == 0 || overheat <= target {
		return ThermalInfo{}, false
	}
	delta := value - target
	return ThermalInfo{
		Thermal:  th,
		Value:    value,
		Target:   target,
		Overheat: overheat,
		Delta:    delta,
		DeltaP:   delta / (overheat - target),
	}, true
}

// ThermalInfos collects the infos of one control pass. Overheat latches
// once any processed sensor is above its lower threshold.
type ThermalInfos struct {
	infos    []ThermalInfo
	overheat bool
}

// Process adds th unless it is invalid, has no usable target or is
// already past min(overheat, critical).
func (t *ThermalInfos) Process(th ThermalEntity, targetOffset float64) {
	if !th.Valid() {
		return
	}
	target := th.Target()
	maxTemp := min(th.Overheat(), th.Critical())
	if target == 0 || maxTemp == 0 {
		return
	}
	if th.Temperature() > maxTemp {
		t.overheat = true
		return
	}
	if info, ok := NewThermalInfo(th, th.Temperature(), target+targetOffset, maxTemp); ok {
		t.infos = append(t.infos, info)
	}
}

func (t *ThermalInfos) Overheat() bool {
	return t.overheat
}

func (t *ThermalInfos) Len() int {
	return len(t.infos)
}

func (t *ThermalInfos) Infos() []ThermalInfo {
	return append([]ThermalInfo(nil), t.infos...)
}

// Critical returns the info with the highest DeltaP. The first one wins a
// tie.
func (t *ThermalInfos) Critical() (ThermalInfo, bool) {
	if len(t.infos) == 0 {
		return ThermalInfo{}, false
	}
	crit := t.infos[0]
	for _, info := range t.infos[1:] {
		if info.DeltaP > crit.DeltaP {
			crit = info
		}
	}
	return crit, true
}
