package cooling

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// Defaults used when a ManagerConfig field is left zero
const (
	DefaultDataPoints   = 10
	DefaultTargetFactor = 0.8
	DefaultGCCount      = 15
)

type ManagerConfig struct {
	DataPoints   int
	TargetFactor float64
	// GCCount is the number of plain updates between two collections
	GCCount     int
	XcvrsViaAPI bool
}

type ManagerOption func(*Manager)

func WithPlatform(p platform.Platform) ManagerOption {
	return func(m *Manager) {
		m.platform = p
	}
}

func WithChassis(c platform.Chassis) ManagerOption {
	return func(m *Manager) {
		m.chassis = c
	}
}

func WithDatabases(dbs platform.Databases) ManagerOption {
	return func(m *Manager) {
		m.dbs = dbs
	}
}

// WithPublishedRows names the state DB rows this process writes itself.
// Discovery skips them so a sensor is never kept alive by its own echo.
func WithPublishedRows(published func(table, key string) bool) ManagerOption {
	return func(m *Manager) {
		m.published = published
	}
}

func WithClock(c Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// Manager discovers cooling entities from every configured source and
// keeps one entity per canonical name. An entity no source listed since
// the previous collection is dropped by the next one.
type Manager struct {
	cfg       ManagerConfig
	platform  platform.Platform
	chassis   platform.Chassis
	dbs       platform.Databases
	published func(table, key string) bool
	clock     Clock
	log       logger.Logger

	fans     map[string]*Fan
	thermals map[string]*Thermal
	psus     map[string]*Psu
	xcvrs    map[string]*XcvrThermal

	window    uint64
	gcCounter int
}

func NewManager(cfg ManagerConfig, opts ...ManagerOption) *Manager {
	if cfg.DataPoints <= 0 {
		cfg.DataPoints = DefaultDataPoints
	}
	if cfg.TargetFactor <= 0 {
		cfg.TargetFactor = DefaultTargetFactor
	}
	if cfg.GCCount <= 0 {
		cfg.GCCount = DefaultGCCount
	}

	m := &Manager{
		cfg:      cfg,
		clock:    MonotonicClock,
		log:      logger.With("manager"),
		fans:     make(map[string]*Fan),
		thermals: make(map[string]*Thermal),
		psus:     make(map[string]*Psu),
		xcvrs:    make(map[string]*XcvrThermal),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Clock() Clock {
	return m.clock
}

// Tick is the per-interval entry point: a plain update, or a collection
// once GCCount plain updates have run since the last one.
func (m *Manager) Tick(ctx context.Context) {
	if !m.CollectIfDue(ctx) {
		m.Update(ctx)
	}
}

// CollectIfDue runs a collection when GCCount ticks have passed since the
// last one. Otherwise it only advances the counter.
func (m *Manager) CollectIfDue(ctx context.Context) bool {
	if m.gcCounter >= m.cfg.GCCount {
		m.Collect(ctx)
		return true
	}
	m.gcCounter++
	return false
}

// Collect refreshes everything, removes the entities no source listed
// since the previous collection and opens a new window.
func (m *Manager) Collect(ctx context.Context) {
	m.Update(ctx)

	var removed []string
	removed = append(removed, sweep(m.fans, m.window)...)
	removed = append(removed, sweep(m.thermals, m.window)...)
	removed = append(removed, sweep(m.psus, m.window)...)
	removed = append(removed, sweep(m.xcvrs, m.window)...)
	m.window++
	m.gcCounter = 0

	if len(removed) > 0 {
		m.log.Info().
			Strs("entities", removed).
			Msg("Removed stale entities")
	}
}

func sweep[E Entity](coll map[string]E, window uint64) []string {
	var removed []string
	for name, e := range coll {
		if e.base().seen != window {
			delete(coll, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Update discovers and refreshes all entity categories.
func (m *Manager) Update(ctx context.Context) {
	m.UpdateFans(ctx)
	m.UpdateThermals(ctx)
	m.UpdatePsus(ctx)
	m.UpdateXcvrs(ctx)
}

func (m *Manager) UpdateFans(ctx context.Context) {
	resetListed(m.fans)
	m.safely("fans", func() { m.discoverFans(ctx) })
	updateAll(ctx, m.fans)
}

func (m *Manager) UpdateThermals(ctx context.Context) {
	resetListed(m.thermals)
	m.safely("thermals", func() { m.discoverThermals(ctx) })
	updateAll(ctx, m.thermals)
}

func (m *Manager) UpdatePsus(ctx context.Context) {
	resetListed(m.psus)
	m.safely("psus", func() { m.discoverPsus(ctx) })
	updateAll(ctx, m.psus)
}

func (m *Manager) UpdateXcvrs(ctx context.Context) {
	resetListed(m.xcvrs)
	m.safely("xcvrs", func() { m.discoverXcvrs(ctx) })
	updateAll(ctx, m.xcvrs)
}

func resetListed[E Entity](coll map[string]E) {
	for _, e := range coll {
		e.resetListed()
	}
}

func updateAll[E Entity](ctx context.Context, coll map[string]E) {
	for _, e := range coll {
		e.Update(ctx)
	}
}

// safely keeps one failing enumeration from aborting the whole tick.
func (m *Manager) safely(category string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("category", category).
				Err(errors.New().WithData(ErrEnumeration, r)).
				Msg("Entity discovery aborted")
		}
	}()
	fn()
}

func (m *Manager) warn(source string, err error) {
	m.log.Warn().
		Str("source", source).
		Err(err).
		Msg("Failed to enumerate entities")
}

func getEntity[E Entity](m *Manager, coll map[string]E, name string, create func(string) E) E {
	e, ok := coll[name]
	if !ok {
		e = create(name)
		coll[name] = e
		m.log.Debug().Str("entity", name).Msg("Discovered entity")
	}
	e.base().seen = m.window
	return e
}

func (m *Manager) fan(name string) *Fan {
	return getEntity(m, m.fans, name, func(n string) *Fan {
		return newFan(n, m.cfg.DataPoints, m.clock)
	})
}

func (m *Manager) thermal(name string) *Thermal {
	return getEntity(m, m.thermals, name, func(n string) *Thermal {
		return newThermal(n, m.cfg.DataPoints, m.cfg.TargetFactor, m.clock)
	})
}

func (m *Manager) psu(name string) *Psu {
	return getEntity(m, m.psus, name, newPsu)
}

func (m *Manager) xcvr(name string) *XcvrThermal {
	return getEntity(m, m.xcvrs, name, func(n string) *XcvrThermal {
		return newXcvrThermal(n, m.cfg.DataPoints, m.cfg.TargetFactor, m.clock)
	})
}

type slotInventory struct {
	slot int
	inv  platform.Inventory
}

// baseInventories returns the platform inventory and every card's.
func (m *Manager) baseInventories() []slotInventory {
	if m.platform == nil {
		return nil
	}
	var invs []slotInventory
	if inv := m.platform.Inventory(); inv != nil {
		invs = append(invs, slotInventory{slot: 0, inv: inv})
	}
	for _, card := range m.platform.Cards() {
		if card.Inventory != nil {
			invs = append(invs, slotInventory{slot: card.Slot, inv: card.Inventory})
		}
	}
	return invs
}

// inventories adds the inventories of present, identified PSUs, which own
// their own fans and sensors.
func (m *Manager) inventories() []slotInventory {
	base := m.baseInventories()
	invs := append([]slotInventory(nil), base...)
	for _, si := range base {
		for _, slot := range si.inv.PsuSlots() {
			present, err := slot.Presence()
			if err != nil || !present {
				continue
			}
			if inv := slot.Inventory(); inv != nil {
				invs = append(invs, slotInventory{slot: si.slot, inv: inv})
			}
		}
	}
	return invs
}

// mySlot is the chassis slot this process runs in, -1 when unknown.
func (m *Manager) mySlot() int {
	slot, err := m.chassis.MySlot()
	if err != nil {
		m.warn("api my slot", err)
		return -1
	}
	return slot
}

// remoteModules lists the chassis modules except the one in our own slot,
// which the local inventory already covers.
func (m *Manager) remoteModules() []platform.Module {
	modules, err := m.chassis.AllModules()
	if err != nil {
		m.warn("api modules", err)
	}
	own := m.mySlot()
	out := modules[:0:0]
	for _, module := range modules {
		if module.Slot() != own {
			out = append(out, module)
		}
	}
	return out
}

// onChassis reports whether the API describes a modular chassis. Card
// sensors are published unprefixed there and collide in TEMPERATURE_INFO.
func (m *Manager) onChassis() bool {
	if m.chassis == nil {
		return false
	}
	n, err := m.chassis.NumModules()
	if err != nil {
		m.warn("api module count", err)
		return false
	}
	return n > 0
}

// dbKeys lists a state DB table minus the rows this process published.
func (m *Manager) dbKeys(ctx context.Context, db platform.StateDB, table string) []string {
	keys, err := db.Keys(ctx, table)
	if err != nil {
		m.warn("db "+table, err)
	}
	if m.published == nil {
		return keys
	}
	out := keys[:0:0]
	for _, key := range keys {
		if !m.published(table, key) {
			out = append(out, key)
		}
	}
	return out
}

func (m *Manager) discoverFans(ctx context.Context) {
	for _, si := range m.inventories() {
		for _, dev := range si.inv.Fans() {
			m.fan(dev.Name()).RegisterInv(dev)
		}
	}

	if m.chassis != nil {
		m.registerAPIFans(m.chassis.AllFans())
		drawers, err := m.chassis.AllFanDrawers()
		if err != nil {
			m.warn("api fan drawers", err)
		}
		for _, drawer := range drawers {
			m.registerAPIFans(drawer.AllFans())
		}
		for _, module := range m.remoteModules() {
			m.registerAPIFans(module.AllFans())
		}
		psus, err := m.chassis.AllPsus()
		if err != nil {
			m.warn("api psus", err)
		}
		for _, psu := range psus {
			m.registerAPIFans(psu.AllFans())
		}
	}

	if db := m.dbs.State; db != nil {
		for _, key := range m.dbKeys(ctx, db, platform.TableFanInfo) {
			m.fan(key).RegisterDB(db, platform.TableFanInfo, key)
		}
	}
}

func (m *Manager) registerAPIFans(fans []platform.FanDevice, err error) {
	if err != nil {
		m.warn("api fans", err)
		return
	}
	for _, dev := range fans {
		m.fan(dev.Name()).RegisterAPI(dev)
	}
}

func (m *Manager) discoverThermals(ctx context.Context) {
	for _, si := range m.inventories() {
		for _, dev := range si.inv.Temps() {
			m.thermal(CardName(si.slot, dev.Name())).RegisterInv(dev)
		}
	}

	if m.chassis != nil {
		temps, err := m.chassis.AllThermals()
		m.registerAPIThermals(0, temps, err)
		for _, module := range m.remoteModules() {
			temps, err := module.AllThermals()
			m.registerAPIThermals(module.Slot(), temps, err)
		}
		psus, err := m.chassis.AllPsus()
		if err != nil {
			m.warn("api psus", err)
		}
		for _, psu := range psus {
			temps, err := psu.AllThermals()
			m.registerAPIThermals(0, temps, err)
		}
	}

	if db := m.dbs.State; db != nil && !m.onChassis() {
		for _, key := range m.dbKeys(ctx, db, platform.TableTemperatureInfo) {
			m.thermal(key).RegisterDB(db, platform.TableTemperatureInfo, key)
		}
	}

	if db := m.dbs.Chassis; db != nil {
		for slot, table := range m.slotTables(ctx, db, platform.TableTemperatureInfo) {
			keys, err := db.Keys(ctx, table)
			if err != nil {
				m.warn("chassis db "+table, err)
				continue
			}
			for _, key := range keys {
				m.thermal(CardName(slot, key)).RegisterDB(db, table, key)
			}
		}
	}
}

func (m *Manager) registerAPIThermals(slot int, temps []platform.TempDevice, err error) {
	if err != nil {
		m.warn("api thermals", err)
		return
	}
	for _, dev := range temps {
		m.thermal(CardName(slot, dev.Name())).RegisterAPI(dev)
	}
}

func (m *Manager) discoverPsus(ctx context.Context) {
	for _, si := range m.baseInventories() {
		for _, slot := range si.inv.PsuSlots() {
			if dev := slot.Psu(); dev != nil {
				m.psu(NormalizePsuName(dev.Name())).RegisterInv(dev)
			}
		}
	}

	if m.chassis != nil {
		psus, err := m.chassis.AllPsus()
		if err != nil {
			m.warn("api psus", err)
		}
		for _, dev := range psus {
			m.psu(NormalizePsuName(dev.Name())).RegisterAPI(dev)
		}
	}

	if db := m.dbs.State; db != nil {
		for _, key := range m.dbKeys(ctx, db, platform.TablePsuInfo) {
			m.psu(NormalizePsuName(key)).RegisterDB(db, platform.TablePsuInfo, key)
		}
	}
}

func (m *Manager) discoverXcvrs(ctx context.Context) {
	if m.cfg.XcvrsViaAPI {
		if m.chassis == nil {
			return
		}
		sfps, err := m.chassis.AllSfps()
		if err != nil {
			m.warn("api sfps", err)
		}
		for _, sfp := range sfps {
			if present, err := sfp.Presence(); err != nil || !present {
				continue
			}
			m.xcvr(sfp.Name()).RegisterAPI(sfp)
		}
		return
	}

	if db := m.dbs.State; db != nil {
		for _, key := range m.dbKeys(ctx, db, platform.TableXcvrDomSensor) {
			m.xcvr(key).RegisterDB(db, platform.TableXcvrDomSensor, platform.TableXcvrDomThreshold, key)
		}
	}

	if db := m.dbs.Chassis; db != nil {
		for slot, table := range m.slotTables(ctx, db, platform.TableXcvrDomSensor) {
			keys, err := db.Keys(ctx, table)
			if err != nil {
				m.warn("chassis db "+table, err)
				continue
			}
			thresholds := fmt.Sprintf("%s_%d", platform.TableXcvrDomThreshold, slot)
			for _, key := range keys {
				m.xcvr(CardName(slot, key)).RegisterDB(db, table, thresholds, key)
			}
		}
	}
}

// slotTables finds the per-slot copies of a table, named TABLE_<slot>,
// leaving out our own slot.
func (m *Manager) slotTables(ctx context.Context, db platform.StateDB, table string) map[int]string {
	tables, err := db.Tables(ctx)
	if err != nil {
		m.warn("chassis db tables", err)
		return nil
	}
	own := -1
	if m.chassis != nil {
		own = m.mySlot()
	}
	out := make(map[int]string)
	prefix := table + "_"
	for _, t := range tables {
		rest, ok := strings.CutPrefix(t, prefix)
		if !ok {
			continue
		}
		slot, err := strconv.Atoi(rest)
		if err != nil || slot == own {
			continue
		}
		out[slot] = t
	}
	return out
}

// CardName prefixes a sensor name with its card, e.g. "CARD3 ASIC". Local
// sensors and names already carrying the prefix are returned unchanged.
func CardName(slot int, name string) string {
	if slot == 0 {
		return name
	}
	prefix := fmt.Sprintf("CARD%d ", slot)
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// NormalizePsuName maps the database spelling "PSU 1" to "psu1".
func NormalizePsuName(name string) string {
	rest, ok := strings.CutPrefix(name, "PSU ")
	if !ok {
		return name
	}
	return "psu" + strings.TrimSpace(rest)
}

// Fans returns the current fans ordered by name.
func (m *Manager) Fans() []*Fan {
	return sorted(m.fans)
}

func (m *Manager) Psus() []*Psu {
	return sorted(m.psus)
}

func (m *Manager) Xcvrs() []*XcvrThermal {
	return sorted(m.xcvrs)
}

// Thermals returns chip sensors and transceivers, ordered by name.
func (m *Manager) Thermals() []ThermalEntity {
	out := make([]ThermalEntity, 0, len(m.thermals)+len(m.xcvrs))
	for _, t := range m.thermals {
		out = append(out, t)
	}
	for _, x := range m.xcvrs {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (m *Manager) Fan(name string) (*Fan, bool) {
	f, ok := m.fans[name]
	return f, ok
}

func (m *Manager) Thermal(name string) (ThermalEntity, bool) {
	if t, ok := m.thermals[name]; ok {
		return t, true
	}
	if x, ok := m.xcvrs[name]; ok {
		return x, true
	}
	return nil, false
}

func (m *Manager) Psu(name string) (*Psu, bool) {
	p, ok := m.psus[name]
	return p, ok
}

func sorted[E Entity](coll map[string]E) []E {
	out := make([]E, 0, len(coll))
	for _, e := range coll {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
