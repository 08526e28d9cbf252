package cooling

import (
	"context"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// FanState is the last reading of a fan. Speed is in percent.
type FanState struct {
	Speed    float64
	Presence bool
	Status   bool
}

type fanSource interface {
	readFan(ctx context.Context) (FanState, error)
}

type fanWriter interface {
	writeFanSpeed(speed float64) error
}

type deviceFan struct {
	dev platform.FanDevice
}

func (d deviceFan) readFan(_ context.Context) (FanState, error) {
	presence, err := d.dev.Presence()
	if err != nil {
		return FanState{}, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	status, err := d.dev.Status()
	if err != nil {
		return FanState{}, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	speed, err := d.dev.Speed()
	if err != nil {
		return FanState{}, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	return FanState{Speed: speed, Presence: presence, Status: status}, nil
}

func (d deviceFan) writeFanSpeed(speed float64) error {
	return d.dev.SetSpeed(speed)
}

type dbFan struct {
	dbRow
}

// readFan prefers the measured speed and falls back to the target speed
// for daemons that only publish the latter.
func (d dbFan) readFan(ctx context.Context) (FanState, error) {
	fields, err := d.fields(ctx)
	if err != nil {
		return FanState{}, err
	}
	raw, err := field(fields, "speed", "speed_target")
	if err != nil {
		return FanState{}, err
	}
	speed, err := parseFloat(raw)
	if err != nil {
		return FanState{}, err
	}
	var state FanState
	state.Speed = speed
	for name, dst := range map[string]*bool{"presence": &state.Presence, "status": &state.Status} {
		raw, err := field(fields, name)
		if err != nil {
			return FanState{}, err
		}
		if *dst, err = parseBool(raw); err != nil {
			return FanState{}, err
		}
	}
	return state, nil
}

// Fan is a cooling fan. Reads fall through inv, api then db. Writes go
// through the inventory when one is registered, else through the API.
type Fan struct {
	entityBase
	sources slots[fanSource]
	state   FanState
	known   bool
	clock   Clock
	history *HistoricalBuffer
	log     logger.Logger
}

func newFan(name string, dataPoints int, clock Clock) *Fan {
	return &Fan{
		entityBase: entityBase{name: name},
		clock:      clock,
		history:    NewHistoricalBuffer(name, dataPoints),
		log:        logger.With("fan"),
	}
}

func (f *Fan) RegisterInv(dev platform.FanDevice) bool {
	if dev == nil {
		return false
	}
	return f.sources.register(SourceInv, deviceFan{dev: dev})
}

func (f *Fan) RegisterAPI(dev platform.FanDevice) bool {
	if dev == nil {
		return false
	}
	return f.sources.register(SourceAPI, deviceFan{dev: dev})
}

func (f *Fan) RegisterDB(db platform.StateDB, table, key string) bool {
	if db == nil {
		return false
	}
	return f.sources.register(SourceDB, dbFan{dbRow{db: db, table: table, key: key}})
}

func (f *Fan) Sources() []SourceKind {
	return f.sources.kinds()
}

func (f *Fan) ListedBy(kind SourceKind) bool {
	return f.sources.listed[kind]
}

func (f *Fan) resetListed() {
	f.sources.listed = [numSources]bool{}
}

func (f *Fan) Update(ctx context.Context) bool {
	for _, kind := range updateOrder {
		src, ok := f.sources.get(kind)
		if !ok {
			continue
		}
		state, err := tryRead(func() (FanState, error) { return src.readFan(ctx) })
		if err != nil {
			f.log.Debug().
				Str("fan", f.name).
				Str("source", kind.String()).
				Err(err).
				Msg("Fan source failed")
			continue
		}
		f.state = state
		f.known = true
		f.history.AppendGet(f.clock(), state.Speed)
		return true
	}
	return false
}

// Set commands a new speed. Only a successful write is recorded in the
// set history.
func (f *Fan) Set(now time.Duration, speed float64) error {
	for _, kind := range [...]SourceKind{SourceInv, SourceAPI} {
		src, ok := f.sources.get(kind)
		if !ok {
			continue
		}
		w, ok := src.(fanWriter)
		if !ok {
			continue
		}
		_, err := tryRead(func() (struct{}, error) { return struct{}{}, w.writeFanSpeed(speed) })
		if err != nil {
			return errors.New().Wrap(ErrFanWriteFailed, err)
		}
		f.history.AppendSet(now, speed)
		return nil
	}
	return errors.New().WithData(ErrFanNoWriter, f.name)
}

// Speed returns the last read speed, false until a source answered once
func (f *Fan) Speed() (float64, bool) {
	return f.state.Speed, f.known
}

func (f *Fan) Presence() bool {
	return f.state.Presence
}

func (f *Fan) Status() bool {
	return f.state.Status
}

func (f *Fan) Known() bool {
	return f.known
}

func (f *Fan) State() FanState {
	return f.state
}

func (f *Fan) History() *HistoricalBuffer {
	return f.history
}
