package policy

import (
	"codeberg.org/mutker/chassisctl/internal/cooling"
)

// Env is what info objects are built from.
type Env struct {
	Manager   *cooling.Manager
	Algorithm *cooling.Algorithm
}

type (
	infoFactory   func(env Env) Info
	actionFactory func(args map[string]any) (Action, error)
)

var infoTypes = map[string]infoFactory{
	"fan_info": func(env Env) Info {
		return &FanInfo{m: env.Manager}
	},
	"thermal_info": func(env Env) Info {
		return &ThermalInfo{m: env.Manager}
	},
	"psu_info": func(env Env) Info {
		return &PsuInfo{m: env.Manager}
	},
	"control_info": newControlInfo,
	"chassis_info": newControlInfo,
}

func newControlInfo(env Env) Info {
	return &ControlInfo{m: env.Manager, algorithm: env.Algorithm}
}

// The absence and fault conditions only look at entities that answered at
// least once.
var conditionTypes = map[string]Condition{
	"thermal.any.critical": thermalCondition(func(i *ThermalInfo) bool {
		return anyOf(i.Thermals(), func(t cooling.ThermalEntity) bool { return t.InCritical() })
	}),
	"thermal.any.overheat": thermalCondition(func(i *ThermalInfo) bool {
		return anyOf(i.Thermals(), func(t cooling.ThermalEntity) bool { return t.InOverheat() })
	}),
	"fan.any.absence": fanCondition(func(i *FanInfo) bool {
		return anyOf(i.Fans(), func(f *cooling.Fan) bool { return f.Known() && !f.Presence() })
	}),
	"fan.all.presence": fanCondition(func(i *FanInfo) bool {
		return allOf(i.Fans(), func(f *cooling.Fan) bool { return f.Presence() })
	}),
	"fan.any.fault": fanCondition(func(i *FanInfo) bool {
		return anyOf(i.Fans(), func(f *cooling.Fan) bool { return f.Known() && !f.Status() })
	}),
	"psu.any.absence": psuCondition(func(i *PsuInfo) bool {
		return anyOf(i.Psus(), func(p *cooling.Psu) bool { return p.Known() && !p.Presence() })
	}),
	"psu.all.presence": psuCondition(func(i *PsuInfo) bool {
		return allOf(i.Psus(), func(p *cooling.Psu) bool { return p.Presence() })
	}),
	"psu.any.fault": psuCondition(func(i *PsuInfo) bool {
		return anyOf(i.Psus(), func(p *cooling.Psu) bool { return p.Known() && !p.Status() })
	}),
	"normal": condition{match: func(*Infos) bool { return true }},
}

var actionTypes = map[string]actionFactory{
	"fan.all.set_speed":       newSetFanSpeed,
	"thermal_control.control": newThermalControl,
}

func init() {
	// older policy files spell the fan absence condition this way
	conditionTypes["fan.any.absent"] = conditionTypes["fan.any.absence"]
}
