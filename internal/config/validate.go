package config

import (
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

// validationError reports a single invalid field
type validationError struct {
	field  string
	value  any
	reason string
}

// Validate checks the loaded values. Any failure here is fatal for the daemon.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	checks := []struct {
		ok bool
		validationError
	}{
		{c.CoolingDataPoints >= 2, validationError{"cooling_data_points", c.CoolingDataPoints, "must be at least 2"}},
		{c.CoolingGCCount >= 1, validationError{"cooling_gc_count", c.CoolingGCCount, "must be at least 1"}},
		{c.CoolingMinSpeed >= 0 && c.CoolingMinSpeed <= 100, validationError{"cooling_min_speed", c.CoolingMinSpeed, "must be within [0, 100]"}},
		{c.CoolingMaxIncrease > 0, validationError{"cooling_max_increase", c.CoolingMaxIncrease, "must be positive"}},
		{c.CoolingMaxDecrease > 0, validationError{"cooling_max_decrease", c.CoolingMaxDecrease, "must be positive"}},
		{c.CoolingTargetFactor > 0, validationError{"cooling_target_factor", c.CoolingTargetFactor, "must be positive"}},
		{c.CoolingLoopInterval > 0, validationError{"cooling_loop_interval", c.CoolingLoopInterval, "must be positive"}},
		{!c.MetricsEnabled || c.MetricsDB != "", validationError{"metrics_db", c.MetricsDB, "required when metrics are enabled"}},
		{c.MetricsRetention >= 0, validationError{"metrics_retention", c.MetricsRetention, "must not be negative"}},
	}

	for _, check := range checks {
		if check.ok {
			continue
		}
		code := errors.ErrInvalidConfig
		if check.field == "cooling_loop_interval" {
			code = errors.ErrInvalidInterval
		}
		return errFactory.WithData(code, struct {
			Field  string
			Value  any
			Reason string
		}{check.field, check.value, check.reason})
	}

	return nil
}
