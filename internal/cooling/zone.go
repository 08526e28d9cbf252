package cooling

import (
	"math"
	"time"

	"codeberg.org/mutker/chassisctl/internal/logger"
)

const (
	// MaxSpeed is the speed commanded on overheat or without any usable
	// sensor
	MaxSpeed = 100.0

	// deadBand is the |DeltaP| below which the speed is held
	deadBand = 0.05
)

// Defaults for ZoneLimits
const (
	DefaultMinSpeed     = 30.0
	DefaultMaxIncrease  = 25.0
	DefaultMaxDecrease  = 10.0
	DefaultTargetOffset = 0.0
)

// ZoneLimits bound the control law. Speeds and steps are in percent,
// TargetOffset in degrees Celsius.
type ZoneLimits struct {
	MinSpeed     float64
	MaxIncrease  float64
	MaxDecrease  float64
	TargetOffset float64
}

func DefaultZoneLimits() ZoneLimits {
	return ZoneLimits{
		MinSpeed:     DefaultMinSpeed,
		MaxIncrease:  DefaultMaxIncrease,
		MaxDecrease:  DefaultMaxDecrease,
		TargetOffset: DefaultTargetOffset,
	}
}

// ZoneReport summarizes one control pass of a zone.
type ZoneReport struct {
	Zone     string    `json:"zone"`
	Time     time.Time `json:"time"`
	Last     float64   `json:"last_speed"`
	Speed    float64   `json:"speed"`
	Overheat bool      `json:"overheat"`
	// Sensor and DeltaP describe the critical sensor, empty when the
	// speed was not derived from one
	Sensor        string  `json:"sensor,omitempty"`
	DeltaP        float64 `json:"deltap"`
	Fans          int     `json:"fans"`
	Thermals      int     `json:"thermals"`
	WriteFailures int     `json:"write_failures"`
}

// Zone drives a set of fans from a set of sensors.
type Zone struct {
	name        string
	limits      ZoneLimits
	fans        []*Fan
	thermals    []ThermalEntity
	speed       *HistoricalBuffer
	initialized bool
	log         logger.Logger
}

func NewZone(name string, limits ZoneLimits, dataPoints int) *Zone {
	return &Zone{
		name:   name,
		limits: limits,
		speed:  NewHistoricalBuffer(name, dataPoints),
		log:    logger.With("zone"),
	}
}

func (z *Zone) Name() string {
	return z.name
}

func (z *Zone) Limits() ZoneLimits {
	return z.limits
}

// Load replaces the members of the zone with the given snapshots.
func (z *Zone) Load(fans []*Fan, thermals []ThermalEntity) {
	z.fans = fans
	z.thermals = thermals
	if !z.initialized {
		z.initialized = true
		z.log.Debug().
			Str("zone", z.name).
			Int("fans", len(fans)).
			Int("thermals", len(thermals)).
			Msg("Zone loaded")
	}
}

func (z *Zone) Initialized() bool {
	return z.initialized
}

func (z *Zone) Fans() []*Fan {
	return z.fans
}

func (z *Zone) Thermals() []ThermalEntity {
	return z.thermals
}

// SpeedHistory holds the speeds commanded by the zone (set) and the fan
// speeds it recovered from when it had none (get).
func (z *Zone) SpeedHistory() *HistoricalBuffer {
	return z.speed
}

// Run computes the zone speed for the pass at now, elapsed after the
// previous one, and writes it to every fan.
func (z *Zone) Run(now, elapsed time.Duration) ZoneReport {
	last := z.lastSpeed(now)

	infos := &ThermalInfos{}
	for _, th := range z.thermals {
		infos.Process(th, z.limits.TargetOffset)
	}

	report := ZoneReport{
		Zone:     z.name,
		Last:     last,
		Fans:     len(z.fans),
		Thermals: len(z.thermals),
	}

	switch {
	case infos.Overheat():
		report.Overheat = true
		report.Speed = MaxSpeed
	case infos.Len() == 0:
		report.Speed = MaxSpeed
	default:
		crit, _ := infos.Critical()
		report.Sensor = crit.Thermal.Name()
		report.DeltaP = crit.DeltaP
		report.Speed = z.nextSpeed(last, crit, elapsed)
	}

	z.speed.AppendSet(now, report.Speed)
	report.WriteFailures = z.apply(now, report.Speed)

	z.log.Debug().
		Str("zone", z.name).
		Float64("last", last).
		Float64("speed", report.Speed).
		Bool("overheat", report.Overheat).
		Str("sensor", report.Sensor).
		Float64("deltap", report.DeltaP).
		Msg("Zone speed computed")

	return report
}

// lastSpeed is the previously commanded speed, or the current speed of
// any fan, or MaxSpeed when nothing is known.
func (z *Zone) lastSpeed(now time.Duration) float64 {
	if v, ok := z.speed.LastSet(); ok {
		return v
	}
	for _, fan := range z.fans {
		if v, ok := fan.Speed(); ok {
			z.speed.AppendGet(now, v)
			return v
		}
	}
	return MaxSpeed
}

func (z *Zone) nextSpeed(last float64, crit ThermalInfo, elapsed time.Duration) float64 {
	if math.Abs(crit.DeltaP) < deadBand {
		return clamp(last, z.limits.MinSpeed, MaxSpeed)
	}

	var step float64
	if crit.Delta < 0 {
		step = math.Max(z.limits.MaxDecrease*crit.DeltaP, -z.limits.MaxDecrease)
	} else {
		step = math.Min(z.limits.MaxIncrease*crit.DeltaP, z.limits.MaxIncrease)
	}
	step *= clamp(elapsed.Seconds()/Interval.Seconds(), 0, 1)

	return clamp(last+step, z.limits.MinSpeed, MaxSpeed)
}

func (z *Zone) apply(now time.Duration, speed float64) int {
	failures := 0
	for _, fan := range z.fans {
		if err := fan.Set(now, speed); err != nil {
			failures++
			z.log.Warn().
				Str("zone", z.name).
				Str("fan", fan.Name()).
				Float64("speed", speed).
				Err(err).
				Msg("Failed to set fan speed")
		}
	}
	return failures
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
