package server

import (
	"codeberg.org/mutker/chassisctl/internal/cooling"
)

type FanView struct {
	Name     string   `json:"name"`
	Known    bool     `json:"known"`
	Speed    float64  `json:"speed"`
	Presence bool     `json:"presence"`
	Status   bool     `json:"status"`
	Sources  []string `json:"sources"`
}

type ThermalView struct {
	Name        string   `json:"name"`
	Valid       bool     `json:"valid"`
	Temperature float64  `json:"temperature"`
	Target      float64  `json:"target"`
	Overheat    float64  `json:"overheat"`
	Critical    float64  `json:"critical"`
	InOverheat  bool     `json:"in_overheat"`
	InCritical  bool     `json:"in_critical"`
	Sources     []string `json:"sources"`
}

type PsuView struct {
	Name     string   `json:"name"`
	Known    bool     `json:"known"`
	Presence bool     `json:"presence"`
	Status   bool     `json:"status"`
	Sources  []string `json:"sources"`
}

// Entities is a copy of the manager's collections, safe to serve from
// another goroutine.
type Entities struct {
	Fans     []FanView     `json:"fans"`
	Thermals []ThermalView `json:"thermals"`
	Psus     []PsuView     `json:"psus"`
}

func sources(kinds []cooling.SourceKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}

// Snapshot copies the manager's entities. It must run on the goroutine
// that ticks the manager.
func Snapshot(m *cooling.Manager) Entities {
	e := Entities{
		Fans:     []FanView{},
		Thermals: []ThermalView{},
		Psus:     []PsuView{},
	}
	for _, f := range m.Fans() {
		speed, known := f.Speed()
		e.Fans = append(e.Fans, FanView{
			Name:     f.Name(),
			Known:    known,
			Speed:    speed,
			Presence: f.Presence(),
			Status:   f.Status(),
			Sources:  sources(f.Sources()),
		})
	}
	for _, t := range m.Thermals() {
		v := ThermalView{
			Name:    t.Name(),
			Valid:   t.Valid(),
			Sources: sources(t.Sources()),
		}
		if v.Valid {
			v.Temperature = t.Temperature()
			v.Target = t.Target()
			v.Overheat = t.Overheat()
			v.Critical = t.Critical()
			v.InOverheat = t.InOverheat()
			v.InCritical = t.InCritical()
		}
		e.Thermals = append(e.Thermals, v)
	}
	for _, p := range m.Psus() {
		e.Psus = append(e.Psus, PsuView{
			Name:     p.Name(),
			Known:    p.Known(),
			Presence: p.Presence(),
			Status:   p.Status(),
			Sources:  sources(p.Sources()),
		})
	}
	return e
}
