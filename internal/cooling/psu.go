package cooling

import (
	"context"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

type PsuState struct {
	Presence bool
	Status   bool
}

type psuSource interface {
	readPsu(ctx context.Context) (PsuState, error)
}

type devicePsu struct {
	dev platform.PsuDevice
}

func (d devicePsu) readPsu(_ context.Context) (PsuState, error) {
	presence, err := d.dev.Presence()
	if err != nil {
		return PsuState{}, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	status, err := d.dev.Status()
	if err != nil {
		return PsuState{}, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	return PsuState{Presence: presence, Status: status}, nil
}

type dbPsu struct {
	dbRow
}

func (d dbPsu) readPsu(ctx context.Context) (PsuState, error) {
	fields, err := d.fields(ctx)
	if err != nil {
		return PsuState{}, err
	}
	var state PsuState
	for name, dst := range map[string]*bool{"presence": &state.Presence, "status": &state.Status} {
		raw, err := field(fields, name)
		if err != nil {
			return PsuState{}, err
		}
		if *dst, err = parseBool(raw); err != nil {
			return PsuState{}, err
		}
	}
	return state, nil
}

// Psu is a power supply. Only presence and status are tracked.
type Psu struct {
	entityBase
	sources slots[psuSource]
	state   PsuState
	known   bool
	log     logger.Logger
}

func newPsu(name string) *Psu {
	return &Psu{
		entityBase: entityBase{name: name},
		log:        logger.With("psu"),
	}
}

func (p *Psu) RegisterInv(dev platform.PsuDevice) bool {
	if dev == nil {
		return false
	}
	return p.sources.register(SourceInv, devicePsu{dev: dev})
}

func (p *Psu) RegisterAPI(dev platform.PsuDevice) bool {
	if dev == nil {
		return false
	}
	return p.sources.register(SourceAPI, devicePsu{dev: dev})
}

func (p *Psu) RegisterDB(db platform.StateDB, table, key string) bool {
	if db == nil {
		return false
	}
	return p.sources.register(SourceDB, dbPsu{dbRow{db: db, table: table, key: key}})
}

func (p *Psu) Sources() []SourceKind {
	return p.sources.kinds()
}

func (p *Psu) ListedBy(kind SourceKind) bool {
	return p.sources.listed[kind]
}

func (p *Psu) resetListed() {
	p.sources.listed = [numSources]bool{}
}

func (p *Psu) Update(ctx context.Context) bool {
	for _, kind := range updateOrder {
		src, ok := p.sources.get(kind)
		if !ok {
			continue
		}
		state, err := tryRead(func() (PsuState, error) { return src.readPsu(ctx) })
		if err != nil {
			p.log.Debug().
				Str("psu", p.name).
				Str("source", kind.String()).
				Err(err).
				Msg("PSU source failed")
			continue
		}
		p.state = state
		p.known = true
		return true
	}
	return false
}

func (p *Psu) Presence() bool {
	return p.state.Presence
}

func (p *Psu) Status() bool {
	return p.state.Status
}

func (p *Psu) Known() bool {
	return p.known
}
