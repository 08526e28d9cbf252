package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/chassisctl/internal/config"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/pid"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		logger.Warn().Err(err).Msg("Invalid log level, using info")
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(""); err != nil {
		logger.Fatal().Code(err).Msg("failed to write pid file")
	}

	d, err := newDaemon(cfg)
	if err != nil {
		_ = pid.Remove("")
		logger.Fatal().Code(err).Msg("failed to initialize")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := loop(ctx, d, time.Duration(cfg.CoolingLoopInterval)*time.Second); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup(d)
}

func loop(ctx context.Context, d *daemon, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().
		Dur("interval", interval).
		Bool("policy", d.engine != nil).
		Bool("simulation", d.cfg.Simulation).
		Msg("Cooling control started")

	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(d *daemon) {
	d.close()
	if err := pid.Remove(""); err != nil {
		logger.Error().Err(err).Msg("failed to remove pid file")
	}
	logger.Info().Msg("Exiting...")
}
