package main

import (
	"context"
	"time"

	"codeberg.org/mutker/chassisctl/internal/config"
	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/metrics"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"codeberg.org/mutker/chassisctl/internal/platform/api"
	"codeberg.org/mutker/chassisctl/internal/platform/hwmon"
	"codeberg.org/mutker/chassisctl/internal/platform/multi"
	"codeberg.org/mutker/chassisctl/internal/platform/nvml"
	"codeberg.org/mutker/chassisctl/internal/policy"
	"codeberg.org/mutker/chassisctl/internal/publish"
	"codeberg.org/mutker/chassisctl/internal/server"
	"codeberg.org/mutker/chassisctl/internal/statedb"
)

// daemon owns everything a tick touches. Ticks run on the main goroutine
// only.
type daemon struct {
	cfg     *config.Config
	log     logger.Logger
	manager *cooling.Manager
	algo    *cooling.Algorithm
	engine  *policy.Engine

	state      *statedb.Store
	thresholds *thresholdWriter
	status     *server.Server

	// closed in reverse order
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg, log: logger.With("daemon")}
	if err := d.init(); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *daemon) init() error {
	errFactory := errors.New()
	cfg := d.cfg

	plat, err := d.buildPlatform()
	if err != nil {
		return err
	}
	opts := []cooling.ManagerOption{cooling.WithPlatform(plat)}

	if cfg.PlatformAPI != "" {
		opts = append(opts, cooling.WithChassis(api.New(cfg.PlatformAPI, logger.With("api"))))
	}

	dbs, err := d.openDatabases()
	if err != nil {
		return err
	}
	opts = append(opts, cooling.WithDatabases(dbs))

	if d.state != nil && cfg.WriteHWThresholds && !cfg.Simulation {
		d.thresholds, err = newThresholdWriter(context.Background(), d.state)
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		opts = append(opts, cooling.WithPublishedRows(d.thresholds.Publishes))
	}

	d.manager = cooling.NewManager(cooling.ManagerConfig{
		DataPoints:   cfg.CoolingDataPoints,
		TargetFactor: cfg.CoolingTargetFactor,
		GCCount:      cfg.CoolingGCCount,
		XcvrsViaAPI:  cfg.CoolingXcvrsViaAPI,
	}, opts...)

	observers, err := d.buildObservers()
	if err != nil {
		return err
	}

	d.algo = cooling.NewAlgorithm(cooling.AlgorithmConfig{
		Limits: cooling.ZoneLimits{
			MinSpeed:     cfg.CoolingMinSpeed,
			MaxIncrease:  cfg.CoolingMaxIncrease,
			MaxDecrease:  cfg.CoolingMaxDecrease,
			TargetOffset: cfg.CoolingTargetOffset,
		},
		DataPoints: cfg.CoolingDataPoints,
		ExportPath: cfg.CoolingExportPath,
		Simulation: cfg.Simulation,
	}, d.manager, cooling.WithObservers(observers...))

	if cfg.ThermalPolicy != "" {
		d.engine, err = policy.Load(cfg.ThermalPolicy, policy.Env{Manager: d.manager, Algorithm: d.algo})
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		d.log.Info().
			Str("path", cfg.ThermalPolicy).
			Int("policies", len(d.engine.Policies())).
			Msg("Thermal policy loaded")
	}

	return nil
}

func (d *daemon) buildPlatform() (*multi.Platform, error) {
	var members []platform.Inventory

	if d.cfg.InventoryHwmon {
		members = append(members, hwmon.New(logger.With("hwmon")))
	}
	if d.cfg.InventoryNVML {
		gpus, err := nvml.New(logger.With("nvml"))
		if err != nil {
			return nil, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		d.closers = append(d.closers, closer{"nvml", gpus.Close})
		members = append(members, gpus)
	}

	p := multi.New(members...)
	d.log.Debug().Int("inventories", p.Len()).Msg("Platform inventory ready")
	return p, nil
}

func (d *daemon) openDatabases() (platform.Databases, error) {
	var dbs platform.Databases

	if d.cfg.StateDB != "" {
		store, err := statedb.Open(statedb.Config{
			Path:     d.cfg.StateDB,
			ReadOnly: !d.cfg.WriteHWThresholds,
		}, logger.With("statedb"))
		if err != nil {
			return dbs, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		d.closers = append(d.closers, closer{"state db", store.Close})
		d.state = store
		dbs.State = store
	}

	if d.cfg.ChassisDB != "" {
		store, err := statedb.Open(statedb.Config{
			Path:     d.cfg.ChassisDB,
			ReadOnly: true,
		}, logger.With("chassisdb"))
		if err != nil {
			return dbs, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		d.closers = append(d.closers, closer{"chassis db", store.Close})
		dbs.Chassis = store
	}

	return dbs, nil
}

func (d *daemon) buildObservers() ([]cooling.Observer, error) {
	var observers []cooling.Observer

	if d.cfg.MetricsEnabled {
		mcfg := metrics.DefaultConfig()
		mcfg.Enabled = true
		mcfg.DBPath = d.cfg.MetricsDB
		mcfg.Retention = time.Duration(d.cfg.MetricsRetention) * time.Hour
		collector, err := metrics.NewService(mcfg)
		if err != nil {
			return nil, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		d.closers = append(d.closers, closer{"metrics", collector.Close})
		observers = append(observers, collector)
	}

	if d.cfg.MQTTBroker != "" {
		pub, err := publish.New(publish.Config{
			Broker: d.cfg.MQTTBroker,
			Topic:  d.cfg.MQTTTopic,
			Retain: true,
		}, logger.With("publish"))
		if err != nil {
			return nil, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		d.closers = append(d.closers, closer{"mqtt", pub.Close})
		observers = append(observers, pub)
	}

	if d.cfg.StatusListen != "" {
		d.status = server.New(logger.With("server"))
		go func() {
			if err := d.status.Listen(d.cfg.StatusListen); err != nil {
				d.log.Error().Err(err).Msg("Status server stopped")
			}
		}()
		d.closers = append(d.closers, closer{"status server", d.status.Shutdown})
		observers = append(observers, d.status)
	}

	return observers, nil
}

// tick runs one control pass, through the policy engine when one is
// loaded.
func (d *daemon) tick(ctx context.Context) {
	if d.engine != nil {
		matched := d.engine.Run(ctx)
		d.log.Debug().Strs("policies", matched).Msg("Policy tick")
	} else {
		d.manager.Tick(ctx)
		reports := d.algo.Run(ctx)
		for _, r := range reports {
			d.log.Debug().
				Str("zone", r.Zone).
				Float64("speed", r.Speed).
				Str("sensor", r.Sensor).
				Bool("overheat", r.Overheat).
				Int("write_failures", r.WriteFailures).
				Msg("Zone tick")
		}
	}

	if d.thresholds != nil {
		if err := d.thresholds.Write(ctx, d.manager.Thermals()); err != nil {
			d.log.Warn().Err(err).Msg("Failed to write sensor thresholds")
		}
	}

	if d.status != nil {
		d.status.SetEntities(server.Snapshot(d.manager))
	}
}

func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.fn(); err != nil {
			d.log.Error().Str("component", c.name).Err(err).Msg("Failed to close")
		}
	}
	d.closers = nil
}
