package cooling

import (
	"context"
	"errors"
	"sort"
	"time"

	"codeberg.org/mutker/chassisctl/internal/platform"
)

var errFake = errors.New("device unavailable")

type fakeFan struct {
	name     string
	speed    float64
	presence bool
	status   bool
	readErr  error
	writeErr error
	panics   bool
	writes   []float64
}

func newFakeFan(name string, speed float64) *fakeFan {
	return &fakeFan{name: name, speed: speed, presence: true, status: true}
}

func (f *fakeFan) Name() string { return f.name }

func (f *fakeFan) Presence() (bool, error) {
	if f.panics {
		panic("driver crashed")
	}
	return f.presence, f.readErr
}

func (f *fakeFan) Status() (bool, error) { return f.status, f.readErr }

func (f *fakeFan) Speed() (float64, error) { return f.speed, f.readErr }

func (f *fakeFan) SetSpeed(speed float64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, speed)
	f.speed = speed
	return nil
}

type fakeTemp struct {
	name        string
	temperature float64
	high        float64
	critical    float64
	target      float64
	err         error
}

func (t *fakeTemp) Name() string                            { return t.name }
func (t *fakeTemp) Temperature() (float64, error)           { return t.temperature, t.err }
func (t *fakeTemp) HighThreshold() (float64, error)         { return t.high, t.err }
func (t *fakeTemp) HighCriticalThreshold() (float64, error) { return t.critical, t.err }
func (t *fakeTemp) TargetTemperature() float64              { return t.target }

type fakePsu struct {
	name     string
	presence bool
	status   bool
}

func (p *fakePsu) Name() string            { return p.name }
func (p *fakePsu) Presence() (bool, error) { return p.presence, nil }
func (p *fakePsu) Status() (bool, error)   { return p.status, nil }

type fakePsuSlot struct {
	psu *fakePsu
	inv platform.Inventory
}

func (s *fakePsuSlot) Presence() (bool, error) { return s.psu != nil && s.psu.presence, nil }

func (s *fakePsuSlot) Psu() platform.PsuDevice {
	if s.psu == nil {
		return nil
	}
	return s.psu
}

func (s *fakePsuSlot) Inventory() platform.Inventory { return s.inv }

type fakeInventory struct {
	fans  []platform.FanDevice
	temps []platform.TempDevice
	slots []platform.PsuSlot
}

func (i *fakeInventory) Fans() []platform.FanDevice   { return i.fans }
func (i *fakeInventory) Temps() []platform.TempDevice { return i.temps }
func (i *fakeInventory) PsuSlots() []platform.PsuSlot { return i.slots }

type fakePlatform struct {
	inv   *fakeInventory
	cards []platform.Card
}

func (p *fakePlatform) Inventory() platform.Inventory {
	if p.inv == nil {
		return nil
	}
	return p.inv
}

func (p *fakePlatform) Cards() []platform.Card { return p.cards }

type fakeModule struct {
	name  string
	slot  int
	fans  []platform.FanDevice
	temps []platform.TempDevice
}

func (m *fakeModule) Name() string                                { return m.name }
func (m *fakeModule) Slot() int                                   { return m.slot }
func (m *fakeModule) AllFans() ([]platform.FanDevice, error)      { return m.fans, nil }
func (m *fakeModule) AllThermals() ([]platform.TempDevice, error) { return m.temps, nil }

type fakeSfp struct {
	name        string
	presence    bool
	temperature float64
	thresholds  map[string]string
	err         error
	thresholdN  int
}

func (s *fakeSfp) Name() string                  { return s.name }
func (s *fakeSfp) Presence() (bool, error)       { return s.presence, nil }
func (s *fakeSfp) Temperature() (float64, error) { return s.temperature, s.err }

func (s *fakeSfp) ThresholdInfo() (map[string]string, error) {
	s.thresholdN++
	return s.thresholds, nil
}

type fakeChassis struct {
	fans     []platform.FanDevice
	thermals []platform.TempDevice
	psus     []platform.Psu
	sfps     []platform.Sfp
	modules  []platform.Module
	mySlot   int
	slotErr  error
	err      error
}

func (c *fakeChassis) AllFans() ([]platform.FanDevice, error)       { return c.fans, c.err }
func (c *fakeChassis) AllFanDrawers() ([]platform.FanDrawer, error) { return nil, c.err }
func (c *fakeChassis) AllPsus() ([]platform.Psu, error)             { return c.psus, c.err }
func (c *fakeChassis) AllThermals() ([]platform.TempDevice, error)  { return c.thermals, c.err }
func (c *fakeChassis) AllSfps() ([]platform.Sfp, error)             { return c.sfps, c.err }
func (c *fakeChassis) AllModules() ([]platform.Module, error)       { return c.modules, c.err }
func (c *fakeChassis) MySlot() (int, error)                         { return c.mySlot, c.slotErr }
func (c *fakeChassis) NumModules() (int, error)                     { return len(c.modules), nil }

// fakeDB is an in-memory StateDB keyed by table then row key.
type fakeDB struct {
	tables map[string]map[string]map[string]string
	err    error
}

func newFakeDB() *fakeDB {
	return &fakeDB{tables: make(map[string]map[string]map[string]string)}
}

func (d *fakeDB) set(table, key string, fields map[string]string) {
	if d.tables[table] == nil {
		d.tables[table] = make(map[string]map[string]string)
	}
	d.tables[table][key] = fields
}

func (d *fakeDB) del(table, key string) {
	delete(d.tables[table], key)
}

func (d *fakeDB) Tables(_ context.Context) ([]string, error) {
	var out []string
	for t := range d.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, d.err
}

func (d *fakeDB) Keys(_ context.Context, table string) ([]string, error) {
	var out []string
	for k := range d.tables[table] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, d.err
}

func (d *fakeDB) Row(_ context.Context, table, key string) (map[string]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tables[table][key], nil
}

// stepClock advances by step on every reading.
type stepClock struct {
	now  time.Duration
	step time.Duration
}

func (c *stepClock) read() time.Duration {
	c.now += c.step
	return c.now
}

func fixedClock(d time.Duration) Clock {
	return func() time.Duration { return d }
}
