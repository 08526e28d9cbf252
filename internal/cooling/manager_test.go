package cooling

import (
	"context"
	"testing"

	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names[E Entity](entities []E) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Name())
	}
	return out
}

func TestManagerNameCollision(t *testing.T) {
	invFan := newFakeFan("fan1", 30)
	apiFan := newFakeFan("fan1", 30)
	db := newFakeDB()
	db.set(platform.TableFanInfo, "fan1", map[string]string{
		"speed": "30", "presence": "true", "status": "true",
	})

	m := NewManager(ManagerConfig{},
		WithPlatform(&fakePlatform{inv: &fakeInventory{fans: []platform.FanDevice{invFan}}}),
		WithChassis(&fakeChassis{fans: []platform.FanDevice{apiFan}}),
		WithDatabases(platform.Databases{State: db}),
	)
	m.Update(context.Background())

	fans := m.Fans()
	require.Len(t, fans, 1)
	assert.Equal(t, []SourceKind{SourceInv, SourceAPI, SourceDB}, fans[0].Sources())
}

func TestManagerDiscovery(t *testing.T) {
	ctx := context.Background()

	psuFan := newFakeFan("psu1_fan1", 50)
	psuInv := &fakeInventory{fans: []platform.FanDevice{psuFan}}
	local := &fakeInventory{
		fans:  []platform.FanDevice{newFakeFan("fan1", 30)},
		temps: []platform.TempDevice{&fakeTemp{name: "ASIC", temperature: 50, high: 90, critical: 100}},
		slots: []platform.PsuSlot{
			&fakePsuSlot{psu: &fakePsu{name: "psu1", presence: true, status: true}, inv: psuInv},
			&fakePsuSlot{},
		},
	}
	card := &fakeInventory{
		temps: []platform.TempDevice{&fakeTemp{name: "ASIC", temperature: 60, high: 90, critical: 100}},
	}

	state := newFakeDB()
	state.set(platform.TablePsuInfo, "PSU 2", map[string]string{"presence": "true", "status": "true"})
	state.set(platform.TableTemperatureInfo, "CPU", map[string]string{
		"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95",
	})

	chassisDB := newFakeDB()
	chassisDB.set(platform.TableTemperatureInfo+"_2", "CARD2 PHY", map[string]string{
		"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95",
	})
	chassisDB.set(platform.TableTemperatureInfo+"_3", "PHY", map[string]string{
		"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95",
	})

	m := NewManager(ManagerConfig{},
		WithPlatform(&fakePlatform{inv: local, cards: []platform.Card{{Slot: 1, Inventory: card}}}),
		WithChassis(&fakeChassis{
			modules: []platform.Module{&fakeModule{
				name:  "LINE-CARD4",
				slot:  4,
				temps: []platform.TempDevice{&fakeTemp{name: "ASIC", temperature: 55, high: 90, critical: 100}},
			}},
		}),
		WithDatabases(platform.Databases{State: state, Chassis: chassisDB}),
	)
	m.Update(ctx)

	assert.Equal(t, []string{"fan1", "psu1_fan1"}, names(m.Fans()))
	assert.Equal(t, []string{"psu1", "psu2"}, names(m.Psus()))
	assert.Equal(t,
		[]string{"ASIC", "CARD1 ASIC", "CARD2 PHY", "CARD3 PHY", "CARD4 ASIC"},
		names(m.Thermals()))
	_, ok := m.Thermal("CPU")
	assert.False(t, ok, "unprefixed TEMPERATURE_INFO is ignored on a chassis")

	th, ok := m.Thermal("CARD1 ASIC")
	require.True(t, ok)
	assert.Equal(t, 60.0, th.Temperature())
}

func TestManagerXcvrs(t *testing.T) {
	ctx := context.Background()

	t.Run("From db", func(t *testing.T) {
		state := newFakeDB()
		state.set(platform.TableXcvrDomSensor, "Ethernet0", map[string]string{"temperature": "35"})
		state.set(platform.TableXcvrDomThreshold, "Ethernet0", map[string]string{
			domHighWarning: "70", domHighAlarm: "75",
		})
		chassisDB := newFakeDB()
		chassisDB.set(platform.TableXcvrDomSensor+"_2", "Ethernet8", map[string]string{"temperature": "41"})
		chassisDB.set(platform.TableXcvrDomThreshold+"_2", "Ethernet8", map[string]string{
			domHighWarning: "70", domHighAlarm: "75",
		})

		m := NewManager(ManagerConfig{}, WithDatabases(platform.Databases{State: state, Chassis: chassisDB}))
		m.Update(ctx)

		assert.Equal(t, []string{"CARD2 Ethernet8", "Ethernet0"}, names(m.Xcvrs()))
		x, ok := m.Thermal("CARD2 Ethernet8")
		require.True(t, ok)
		assert.True(t, x.Valid())
		assert.Equal(t, 41.0, x.Temperature())
	})

	t.Run("From api", func(t *testing.T) {
		chassis := &fakeChassis{sfps: []platform.Sfp{
			&fakeSfp{name: "Ethernet0", presence: true, temperature: 30, thresholds: map[string]string{}},
			&fakeSfp{name: "Ethernet4", presence: false},
		}}
		state := newFakeDB()
		state.set(platform.TableXcvrDomSensor, "Ethernet12", map[string]string{"temperature": "35"})

		m := NewManager(ManagerConfig{XcvrsViaAPI: true},
			WithChassis(chassis),
			WithDatabases(platform.Databases{State: state}),
		)
		m.Update(ctx)

		assert.Equal(t, []string{"Ethernet0"}, names(m.Xcvrs()))
	})
}

func TestManagerGC(t *testing.T) {
	ctx := context.Background()
	state := newFakeDB()
	state.set(platform.TablePsuInfo, "PSU 1", map[string]string{"presence": "true", "status": "true"})
	state.set(platform.TableFanInfo, "fan1", map[string]string{"speed": "30", "presence": "true", "status": "true"})

	m := NewManager(ManagerConfig{GCCount: 3}, WithDatabases(platform.Databases{State: state}))

	for tick := 1; tick <= 3; tick++ {
		m.Tick(ctx)
		require.Equal(t, []string{"psu1"}, names(m.Psus()), "tick %d", tick)
	}

	state.del(platform.TablePsuInfo, "PSU 1")
	for tick := 4; tick <= 7; tick++ {
		m.Tick(ctx)
		require.Equal(t, []string{"psu1"}, names(m.Psus()), "seen before the tick 4 collection, tick %d", tick)
	}

	m.Tick(ctx)
	assert.Empty(t, m.Psus(), "collected on tick 8")
	assert.Equal(t, []string{"fan1"}, names(m.Fans()), "listed entities survive")

	m.Tick(ctx)
	_, ok := m.Psu("psu1")
	assert.False(t, ok)
}

func TestManagerGCRetainsEntitiesSeenInWindow(t *testing.T) {
	ctx := context.Background()
	state := newFakeDB()
	row := map[string]string{"presence": "true", "status": "true"}

	m := NewManager(ManagerConfig{GCCount: 3}, WithDatabases(platform.Databases{State: state}))

	tests := []struct {
		tick   int
		listed bool
	}{
		{1, true}, {2, true}, {3, true},
		{4, false}, // collection
		{5, false}, {6, true}, {7, false},
		{8, false}, // collection
	}
	for _, tt := range tests {
		if tt.listed {
			state.set(platform.TablePsuInfo, "PSU 1", row)
		} else {
			state.del(platform.TablePsuInfo, "PSU 1")
		}
		m.Tick(ctx)
		_, ok := m.Psu("psu1")
		assert.True(t, ok, "tick %d", tt.tick)
	}

	for tick := 9; tick <= 12; tick++ {
		m.Tick(ctx)
	}
	_, ok := m.Psu("psu1")
	assert.False(t, ok, "absent for a whole window")
}

func TestManagerChassisSlots(t *testing.T) {
	ctx := context.Background()
	hot := map[string]string{"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95"}

	state := newFakeDB()
	state.set(platform.TableTemperatureInfo, "ASIC", hot)
	chassisDB := newFakeDB()
	chassisDB.set(platform.TableTemperatureInfo+"_2", "MAC", hot)
	chassisDB.set(platform.TableTemperatureInfo+"_3", "MAC", hot)

	chassis := &fakeChassis{
		mySlot: 2,
		modules: []platform.Module{
			&fakeModule{
				name:  "LINE-CARD2",
				slot:  2,
				fans:  []platform.FanDevice{newFakeFan("fan9", 30)},
				temps: []platform.TempDevice{&fakeTemp{name: "ASIC", temperature: 50, high: 90, critical: 100}},
			},
			&fakeModule{
				name:  "LINE-CARD3",
				slot:  3,
				temps: []platform.TempDevice{&fakeTemp{name: "PHY", temperature: 50, high: 90, critical: 100}},
			},
		},
	}
	local := &fakeInventory{
		temps: []platform.TempDevice{&fakeTemp{name: "ASIC", temperature: 50, high: 90, critical: 100}},
	}

	m := NewManager(ManagerConfig{},
		WithPlatform(&fakePlatform{inv: local}),
		WithChassis(chassis),
		WithDatabases(platform.Databases{State: state, Chassis: chassisDB}),
	)
	m.Update(ctx)

	assert.Empty(t, m.Fans(), "own module is not listed twice")
	assert.Equal(t, []string{"ASIC", "CARD3 MAC", "CARD3 PHY"}, names(m.Thermals()))
	asic, ok := m.Thermal("ASIC")
	require.True(t, ok)
	assert.Equal(t, []SourceKind{SourceInv}, asic.Sources())

	t.Run("Fixed system", func(t *testing.T) {
		m := NewManager(ManagerConfig{},
			WithPlatform(&fakePlatform{inv: local}),
			WithChassis(&fakeChassis{}),
			WithDatabases(platform.Databases{State: state}),
		)
		m.Update(ctx)
		asic, ok := m.Thermal("ASIC")
		require.True(t, ok)
		assert.Equal(t, []SourceKind{SourceInv, SourceDB}, asic.Sources())
	})

	t.Run("Unknown slot", func(t *testing.T) {
		broken := *chassis
		broken.slotErr = errFake
		m := NewManager(ManagerConfig{},
			WithChassis(&broken),
			WithDatabases(platform.Databases{Chassis: chassisDB}),
		)
		m.Update(ctx)
		assert.Equal(t, []string{"fan9"}, names(m.Fans()))
		assert.Equal(t, []string{"CARD2 ASIC", "CARD2 MAC", "CARD3 MAC", "CARD3 PHY"}, names(m.Thermals()))
	})
}

func TestManagerListedBy(t *testing.T) {
	ctx := context.Background()
	temp := &fakeTemp{name: "CPU", temperature: 50, high: 90, critical: 100}
	inv := &fakeInventory{temps: []platform.TempDevice{temp}}
	state := newFakeDB()
	state.set(platform.TableTemperatureInfo, "CPU", map[string]string{
		"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95",
	})

	m := NewManager(ManagerConfig{},
		WithPlatform(&fakePlatform{inv: inv}),
		WithDatabases(platform.Databases{State: state}),
	)
	m.Update(ctx)
	cpu, ok := m.Thermal("CPU")
	require.True(t, ok)
	assert.True(t, cpu.ListedBy(SourceInv))
	assert.True(t, cpu.ListedBy(SourceDB))

	inv.temps = nil
	m.Update(ctx)
	assert.False(t, cpu.ListedBy(SourceInv))
	assert.True(t, cpu.ListedBy(SourceDB))
	assert.Equal(t, []SourceKind{SourceInv, SourceDB}, cpu.Sources(), "registrations are kept")
}

func TestManagerSkipsPublishedRows(t *testing.T) {
	ctx := context.Background()
	state := newFakeDB()
	row := map[string]string{"temperature": "40", "high_threshold": "80", "critical_high_threshold": "95"}
	state.set(platform.TableTemperatureInfo, "CPU", row)
	state.set(platform.TableTemperatureInfo, "PHY", row)

	inv := &fakeInventory{temps: []platform.TempDevice{
		&fakeTemp{name: "CPU", temperature: 50, high: 90, critical: 100},
	}}
	m := NewManager(ManagerConfig{GCCount: 1},
		WithPlatform(&fakePlatform{inv: inv}),
		WithDatabases(platform.Databases{State: state}),
		WithPublishedRows(func(table, key string) bool {
			return table == platform.TableTemperatureInfo && key == "CPU"
		}),
	)
	m.Update(ctx)
	cpu, ok := m.Thermal("CPU")
	require.True(t, ok)
	assert.Equal(t, []SourceKind{SourceInv}, cpu.Sources())

	inv.temps = nil
	for i := 0; i < 4; i++ {
		m.Tick(ctx)
	}
	assert.Equal(t, []string{"PHY"}, names(m.Thermals()), "a pulled sensor is not kept alive by its own row")
}

func TestManagerGCRetainsListedEntities(t *testing.T) {
	ctx := context.Background()
	state := newFakeDB()
	state.set(platform.TableFanInfo, "fan1", map[string]string{"speed": "30", "presence": "true", "status": "true"})

	m := NewManager(ManagerConfig{GCCount: 1}, WithDatabases(platform.Databases{State: state}))
	for i := 0; i < 6; i++ {
		m.Tick(ctx)
	}
	fan, ok := m.Fan("fan1")
	require.True(t, ok)
	speed, _ := fan.Speed()
	assert.Equal(t, 30.0, speed)
}

func TestManagerEnumerationErrors(t *testing.T) {
	state := newFakeDB()
	state.err = errFake

	m := NewManager(ManagerConfig{},
		WithChassis(&fakeChassis{err: errFake}),
		WithDatabases(platform.Databases{State: state, Chassis: state}),
	)
	assert.NotPanics(t, func() { m.Tick(context.Background()) })
	assert.Empty(t, m.Fans())
	assert.Empty(t, m.Thermals())
}

func TestCardName(t *testing.T) {
	assert.Equal(t, "ASIC", CardName(0, "ASIC"))
	assert.Equal(t, "CARD2 ASIC", CardName(2, "ASIC"))
	assert.Equal(t, "CARD2 ASIC", CardName(2, "CARD2 ASIC"))
}

func TestNormalizePsuName(t *testing.T) {
	assert.Equal(t, "psu1", NormalizePsuName("PSU 1"))
	assert.Equal(t, "psu12", NormalizePsuName("PSU 12"))
	assert.Equal(t, "psu2", NormalizePsuName("psu2"))
}
