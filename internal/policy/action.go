package policy

import (
	"context"
	"fmt"
	"strconv"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

// Action is executed when every condition of its policy matches.
type Action interface {
	Requires() []Kind
	Execute(ctx context.Context, infos *Infos) error
}

// setFanSpeed drives every fan to a fixed speed.
type setFanSpeed struct {
	speed float64
	log   logger.Logger
}

func newSetFanSpeed(args map[string]any) (Action, error) {
	raw, ok := args["speed"]
	if !ok {
		return nil, errors.New().WithMessage(ErrArgMissing, "fan.all.set_speed: speed")
	}
	speed, err := toFloat(raw)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidArg, err)
	}
	if speed < 0 || speed > cooling.MaxSpeed {
		return nil, errors.New().WithData(ErrInvalidArg, speed)
	}
	return &setFanSpeed{speed: speed, log: logger.With("policy")}, nil
}

func (*setFanSpeed) Requires() []Kind {
	return []Kind{KindFan}
}

func (a *setFanSpeed) Execute(_ context.Context, infos *Infos) error {
	info := infos.Fan()
	now := info.m.Clock()()

	var failed []string
	for _, fan := range info.Fans() {
		if err := fan.Set(now, a.speed); err != nil {
			a.log.Warn().
				Str("fan", fan.Name()).
				Float64("speed", a.speed).
				Err(err).
				Msg("Failed to set fan speed")
			failed = append(failed, fan.Name())
		}
	}
	if len(failed) > 0 {
		return errors.New().WithData(cooling.ErrFanWriteFailed, failed)
	}
	return nil
}

// thermalControl runs the cooling algorithm over the collected entities.
type thermalControl struct{}

func newThermalControl(map[string]any) (Action, error) {
	return thermalControl{}, nil
}

func (thermalControl) Requires() []Kind {
	return []Kind{KindControl}
}

func (thermalControl) Execute(ctx context.Context, infos *Infos) error {
	algo := infos.Control().Algorithm()
	if algo == nil {
		return errors.New().New(ErrNoAlgorithm)
	}
	var opts []cooling.RunOption
	// entities not covered by a declared info are refreshed here
	if !infos.Has(KindFan) || !infos.Has(KindThermal) {
		opts = append(opts, cooling.WithUpdate())
	}
	algo.Run(ctx, opts...)
	return nil
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid number %v", v)
	}
}
