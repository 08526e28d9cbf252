package cooling

import (
	"context"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// ThermalState is the last reading of a temperature sensor. Nil marks a
// value the source could not provide.
type ThermalState struct {
	Temperature *float64
	Overheat    *float64
	Critical    *float64
	// Target is set only when the sensor descriptor carries one
	Target *float64
}

// ThermalEntity is what a cooling zone needs from a sensor.
type ThermalEntity interface {
	Entity
	Valid() bool
	Temperature() float64
	Overheat() float64
	Critical() float64
	Target() float64
	InOverheat() bool
	InCritical() bool
	History() *HistoricalBuffer
}

type thermalSource interface {
	readThermal(ctx context.Context) (ThermalState, error)
}

type deviceThermal struct {
	dev platform.TempDevice
}

func (d deviceThermal) readThermal(_ context.Context) (ThermalState, error) {
	var state ThermalState
	reads := []struct {
		dst  **float64
		read func() (float64, error)
	}{
		{&state.Temperature, d.dev.Temperature},
		{&state.Overheat, d.dev.HighThreshold},
		{&state.Critical, d.dev.HighCriticalThreshold},
	}
	for _, r := range reads {
		v, err := r.read()
		if err != nil {
			return ThermalState{}, errors.New().Wrap(ErrSourceUnavailable, err)
		}
		*r.dst = floatPtr(v)
	}
	if tp, ok := d.dev.(platform.TargetProvider); ok {
		if target := tp.TargetTemperature(); target > 0 {
			state.Target = floatPtr(target)
		}
	}
	return state, nil
}

type dbThermal struct {
	dbRow
}

func (d dbThermal) readThermal(ctx context.Context) (ThermalState, error) {
	fields, err := d.fields(ctx)
	if err != nil {
		return ThermalState{}, err
	}
	var state ThermalState
	for name, dst := range map[string]**float64{
		"temperature":             &state.Temperature,
		"high_threshold":          &state.Overheat,
		"critical_high_threshold": &state.Critical,
	} {
		raw, err := field(fields, name)
		if err != nil {
			return ThermalState{}, err
		}
		if *dst, err = parseOptionalFloat(raw); err != nil {
			return ThermalState{}, err
		}
	}
	return state, nil
}

// thermalData is the state shared by chip sensors and transceivers.
type thermalData struct {
	entityBase
	state        ThermalState
	targetFactor float64
	clock        Clock
	history      *HistoricalBuffer
	log          logger.Logger
}

func newThermalData(name string, dataPoints int, targetFactor float64, clock Clock, component string) thermalData {
	return thermalData{
		entityBase:   entityBase{name: name},
		targetFactor: targetFactor,
		clock:        clock,
		history:      NewHistoricalBuffer(name, dataPoints),
		log:          logger.With(component),
	}
}

func (t *thermalData) record(state ThermalState) {
	t.state = state
	t.history.AppendGet(t.clock(), *state.Temperature)
}

// Valid reports whether temperature and both thresholds are known.
func (t *thermalData) Valid() bool {
	return t.state.Temperature != nil && t.state.Overheat != nil && t.state.Critical != nil
}

func (t *thermalData) Temperature() float64 {
	return deref(t.state.Temperature)
}

func (t *thermalData) Overheat() float64 {
	return deref(t.state.Overheat)
}

func (t *thermalData) Critical() float64 {
	return deref(t.state.Critical)
}

// Target is the explicit target from the sensor when positive, otherwise
// a fixed fraction of the overheat threshold.
func (t *thermalData) Target() float64 {
	if t.state.Target != nil && *t.state.Target > 0 {
		return *t.state.Target
	}
	return t.targetFactor * t.Overheat()
}

func (t *thermalData) InOverheat() bool {
	return exceeds(t.state.Temperature, t.state.Overheat)
}

func (t *thermalData) InCritical() bool {
	return exceeds(t.state.Temperature, t.state.Critical)
}

func (t *thermalData) State() ThermalState {
	return t.state
}

func (t *thermalData) History() *HistoricalBuffer {
	return t.history
}

func exceeds(value, threshold *float64) bool {
	if value == nil || threshold == nil || *value == 0 || *threshold == 0 {
		return false
	}
	return *value > *threshold
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Thermal is a chip temperature sensor. An update only succeeds when the
// source supplied the temperature and both thresholds.
type Thermal struct {
	thermalData
	sources slots[thermalSource]
}

func newThermal(name string, dataPoints int, targetFactor float64, clock Clock) *Thermal {
	return &Thermal{thermalData: newThermalData(name, dataPoints, targetFactor, clock, "thermal")}
}

func (t *Thermal) RegisterInv(dev platform.TempDevice) bool {
	if dev == nil {
		return false
	}
	return t.sources.register(SourceInv, deviceThermal{dev: dev})
}

func (t *Thermal) RegisterAPI(dev platform.TempDevice) bool {
	if dev == nil {
		return false
	}
	return t.sources.register(SourceAPI, deviceThermal{dev: dev})
}

func (t *Thermal) RegisterDB(db platform.StateDB, table, key string) bool {
	if db == nil {
		return false
	}
	return t.sources.register(SourceDB, dbThermal{dbRow{db: db, table: table, key: key}})
}

func (t *Thermal) Sources() []SourceKind {
	return t.sources.kinds()
}

func (t *Thermal) ListedBy(kind SourceKind) bool {
	return t.sources.listed[kind]
}

func (t *Thermal) resetListed() {
	t.sources.listed = [numSources]bool{}
}

func (t *Thermal) Update(ctx context.Context) bool {
	for _, kind := range updateOrder {
		src, ok := t.sources.get(kind)
		if !ok {
			continue
		}
		state, err := tryRead(func() (ThermalState, error) { return src.readThermal(ctx) })
		if err == nil && (state.Temperature == nil || state.Overheat == nil || state.Critical == nil) {
			err = errors.New().WithData(ErrSourceStale, "missing temperature or threshold")
		}
		if err != nil {
			t.log.Debug().
				Str("thermal", t.name).
				Str("source", kind.String()).
				Err(err).
				Msg("Thermal source failed")
			continue
		}
		t.record(state)
		return true
	}
	return false
}
