package metrics

import (
	"context"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

// service stores one sample per zone report.
type service struct {
	repo MetricsRepository
}

type noopMetricsCollector struct{}

// NewService returns a no-op collector when cfg is disabled.
func NewService(cfg Config) (MetricsCollector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	log := logger.With("metrics")
	if !cfg.Enabled {
		log.Debug().Msg("Metrics disabled")
		return &noopMetricsCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}
	return &service{repo: repo}, nil
}

func (s *service) Observe(ctx context.Context, state cooling.ZoneState) error {
	if err := ctx.Err(); err != nil {
		return errors.New().Wrap(ErrOperationTimeout, err)
	}
	if err := s.repo.Record(sampleFromReport(state.Report)); err != nil {
		return errors.New().Wrap(ErrMetricsCollection, err)
	}
	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopMetricsCollector) Observe(context.Context, cooling.ZoneState) error { return nil }
func (*noopMetricsCollector) Close() error                                     { return nil }
