package api

// Snapshot is the document served at /api/v1/chassis. Every reading is
// optional, a nil value means the platform could not read it.
type Snapshot struct {
	MySlot     int            `json:"my_slot"`
	NumModules int            `json:"num_modules"`
	Fans       []FanDoc       `json:"fans"`
	FanDrawers []FanDrawerDoc `json:"fan_drawers"`
	Psus       []PsuDoc       `json:"psus"`
	Thermals   []ThermalDoc   `json:"thermals"`
	Sfps       []SfpDoc       `json:"sfps"`
	Modules    []ModuleDoc    `json:"modules"`
}

type FanDoc struct {
	Name     string   `json:"name"`
	Presence *bool    `json:"presence"`
	Status   *bool    `json:"status"`
	Speed    *float64 `json:"speed"`
}

type FanDrawerDoc struct {
	Name string   `json:"name"`
	Fans []FanDoc `json:"fans"`
}

type ThermalDoc struct {
	Name                  string   `json:"name"`
	Temperature           *float64 `json:"temperature"`
	HighThreshold         *float64 `json:"high_threshold"`
	CriticalHighThreshold *float64 `json:"critical_high_threshold"`
}

type PsuDoc struct {
	Name     string       `json:"name"`
	Presence *bool        `json:"presence"`
	Status   *bool        `json:"status"`
	Fans     []FanDoc     `json:"fans"`
	Thermals []ThermalDoc `json:"thermals"`
}

type SfpDoc struct {
	Name        string            `json:"name"`
	Presence    *bool             `json:"presence"`
	Temperature *float64          `json:"temperature"`
	Thresholds  map[string]string `json:"thresholds"`
}

type ModuleDoc struct {
	Name     string       `json:"name"`
	Slot     int          `json:"slot"`
	Fans     []FanDoc     `json:"fans"`
	Thermals []ThermalDoc `json:"thermals"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

// index holds every element of a snapshot by name, nested ones included.
type index struct {
	fans     map[string]FanDoc
	thermals map[string]ThermalDoc
	psus     map[string]PsuDoc
	sfps     map[string]SfpDoc
}

func newIndex(s *Snapshot) *index {
	idx := &index{
		fans:     make(map[string]FanDoc),
		thermals: make(map[string]ThermalDoc),
		psus:     make(map[string]PsuDoc),
		sfps:     make(map[string]SfpDoc),
	}
	addFans := func(fans []FanDoc) {
		for _, f := range fans {
			idx.fans[f.Name] = f
		}
	}
	addThermals := func(thermals []ThermalDoc) {
		for _, t := range thermals {
			idx.thermals[t.Name] = t
		}
	}

	addFans(s.Fans)
	addThermals(s.Thermals)
	for _, d := range s.FanDrawers {
		addFans(d.Fans)
	}
	for _, p := range s.Psus {
		idx.psus[p.Name] = p
		addFans(p.Fans)
		addThermals(p.Thermals)
	}
	for _, m := range s.Modules {
		addFans(m.Fans)
		addThermals(m.Thermals)
	}
	for _, sfp := range s.Sfps {
		idx.sfps[sfp.Name] = sfp
	}
	return idx
}
