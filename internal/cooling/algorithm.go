package cooling

import (
	"context"
	"time"

	"codeberg.org/mutker/chassisctl/internal/logger"
)

// Interval is the nominal control period. Steps are scaled by the actual
// elapsed time relative to it.
const Interval = 60 * time.Second

// DefaultZone is the single zone created when none is configured
const DefaultZone = "System"

// EntitySource provides the fan and sensor snapshots zones are loaded
// from. *Manager satisfies it.
type EntitySource interface {
	Fans() []*Fan
	Thermals() []ThermalEntity
}

// ZoneState is handed to observers after each zone pass.
type ZoneState struct {
	Report ZoneReport `json:"report"`
	Export ZoneExport `json:"export"`
}

// Observer receives every zone state. Errors are logged and otherwise
// ignored.
type Observer interface {
	Observe(ctx context.Context, state ZoneState) error
}

type AlgorithmConfig struct {
	Limits     ZoneLimits
	DataPoints int
	// ExportPath enables per-zone history files when non-empty
	ExportPath string
	Simulation bool
	Zones      []string
}

type AlgorithmOption func(*Algorithm)

func WithAlgorithmClock(c Clock) AlgorithmOption {
	return func(a *Algorithm) {
		a.clock = c
	}
}

func WithWallClock(now func() time.Time) AlgorithmOption {
	return func(a *Algorithm) {
		a.wall = now
	}
}

func WithObservers(observers ...Observer) AlgorithmOption {
	return func(a *Algorithm) {
		a.observers = append(a.observers, observers...)
	}
}

// Algorithm runs the cooling zones once per tick. Ticks must not overlap.
type Algorithm struct {
	cfg       AlgorithmConfig
	source    EntitySource
	clock     Clock
	wall      func() time.Time
	zones     []*Zone
	exporter  *Exporter
	observers []Observer
	log       logger.Logger

	started  bool
	now      time.Duration
	previous time.Duration
	elapsed  time.Duration
}

func NewAlgorithm(cfg AlgorithmConfig, source EntitySource, opts ...AlgorithmOption) *Algorithm {
	if cfg.DataPoints <= 0 {
		cfg.DataPoints = DefaultDataPoints
	}
	if len(cfg.Zones) == 0 {
		cfg.Zones = []string{DefaultZone}
	}

	a := &Algorithm{
		cfg:    cfg,
		source: source,
		clock:  MonotonicClock,
		wall:   time.Now,
		log:    logger.With("algorithm"),
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, name := range cfg.Zones {
		a.zones = append(a.zones, NewZone(name, cfg.Limits, cfg.DataPoints))
	}
	if cfg.ExportPath != "" && !cfg.Simulation {
		a.exporter = NewExporter(cfg.ExportPath)
	}
	return a
}

type runOptions struct {
	elapsed *time.Duration
	update  bool
}

type RunOption func(*runOptions)

// WithElapsed overrides the measured time since the previous tick.
func WithElapsed(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.elapsed = &d
	}
}

// WithUpdate refreshes every fan and sensor before the zones run.
func WithUpdate() RunOption {
	return func(o *runOptions) {
		o.update = true
	}
}

// Run executes one tick over all zones and returns their reports.
func (a *Algorithm) Run(ctx context.Context, opts ...RunOption) []ZoneReport {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	a.advance(o.elapsed)

	var fans []*Fan
	var thermals []ThermalEntity
	if a.source != nil {
		fans = a.source.Fans()
		thermals = a.source.Thermals()
	}

	if o.update {
		for _, fan := range fans {
			fan.Update(ctx)
		}
		for _, th := range thermals {
			th.Update(ctx)
		}
	}

	reports := make([]ZoneReport, 0, len(a.zones))
	for _, zone := range a.zones {
		zone.Load(fans, thermals)
		report := zone.Run(a.now, a.elapsed)
		report.Time = a.wall()
		reports = append(reports, report)
		a.publish(ctx, zone, report)
	}
	return reports
}

func (a *Algorithm) advance(elapsed *time.Duration) {
	if !a.started {
		a.now = a.clock()
		a.previous = a.now - Interval
		a.started = true
	} else {
		a.previous = a.now
		a.now = a.clock()
	}
	a.elapsed = a.now - a.previous
	if elapsed != nil {
		a.elapsed = *elapsed
	}
}

func (a *Algorithm) publish(ctx context.Context, zone *Zone, report ZoneReport) {
	if a.exporter == nil && len(a.observers) == 0 {
		return
	}
	state := ZoneState{Report: report, Export: zone.Export()}

	if a.exporter != nil {
		if err := a.exporter.Write(state.Export); err != nil {
			a.log.Error().
				Str("zone", zone.Name()).
				Str("path", a.exporter.Path(zone.Name())).
				Err(err).
				Msg("Failed to export zone history")
		}
	}

	for _, obs := range a.observers {
		if err := obs.Observe(ctx, state); err != nil {
			a.log.Warn().
				Str("zone", zone.Name()).
				Err(err).
				Msg("Observer failed")
		}
	}
}

func (a *Algorithm) Zones() []*Zone {
	return a.zones
}

func (a *Algorithm) Zone(name string) (*Zone, bool) {
	for _, z := range a.zones {
		if z.Name() == name {
			return z, true
		}
	}
	return nil, false
}

func (a *Algorithm) Now() time.Duration {
	return a.now
}

func (a *Algorithm) Previous() time.Duration {
	return a.previous
}

func (a *Algorithm) Elapsed() time.Duration {
	return a.elapsed
}
