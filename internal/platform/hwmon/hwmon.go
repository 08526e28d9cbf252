// Package hwmon is the Linux host inventory: temperature sensors through
// gopsutil and PWM fans through the hwmon sysfs class.
package hwmon

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/shirou/gopsutil/v3/host"
)

const (
	defaultSysfsRoot = "/sys"
	defaultTimeout   = 2 * time.Second
	// sensors are read once per cacheTTL no matter how many devices ask
	defaultCacheTTL = time.Second
)

// SensorReader returns the host temperature sensors.
type SensorReader func(ctx context.Context) ([]host.TemperatureStat, error)

type Option func(*Inventory)

func WithSysfsRoot(root string) Option {
	return func(inv *Inventory) {
		inv.root = root
	}
}

func WithSensorReader(read SensorReader) Option {
	return func(inv *Inventory) {
		inv.readSensors = read
	}
}

type Inventory struct {
	root        string
	readSensors SensorReader
	timeout     time.Duration
	ttl         time.Duration
	log         logger.Logger

	mu       sync.Mutex
	sensors  map[string]host.TemperatureStat
	order    []string
	cachedAt time.Time
}

func New(log logger.Logger, opts ...Option) *Inventory {
	inv := &Inventory{
		root:        defaultSysfsRoot,
		readSensors: host.SensorsTemperaturesWithContext,
		timeout:     defaultTimeout,
		ttl:         defaultCacheTTL,
		log:         log,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (inv *Inventory) Temps() []platform.TempDevice {
	if err := inv.refresh(true); err != nil {
		inv.log.Warn().Err(err).Msg("Failed to enumerate temperature sensors")
		return nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]platform.TempDevice, 0, len(inv.order))
	for _, key := range inv.order {
		out = append(out, &sensor{inv: inv, key: key})
	}
	return out
}

func (inv *Inventory) Fans() []platform.FanDevice {
	fans, err := discoverFans(inv.root)
	if err != nil {
		inv.log.Warn().Err(err).Msg("Failed to enumerate PWM fans")
		return nil
	}
	out := make([]platform.FanDevice, 0, len(fans))
	for _, f := range fans {
		out = append(out, f)
	}
	return out
}

func (inv *Inventory) PsuSlots() []platform.PsuSlot {
	return nil
}

// refresh re-reads the sensors when the cache is older than the TTL, or
// always when force is set.
func (inv *Inventory) refresh(force bool) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if !force && time.Since(inv.cachedAt) < inv.ttl {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), inv.timeout)
	defer cancel()

	stats, err := inv.readSensors(ctx)
	if err != nil {
		// gopsutil reports unreadable sensors as warnings next to the
		// ones it could read
		if len(stats) == 0 {
			return errors.New().Wrap(ErrSensorRead, err)
		}
		inv.log.Debug().Err(err).Msg("Some temperature sensors could not be read")
	}

	inv.sensors = make(map[string]host.TemperatureStat, len(stats))
	inv.order = inv.order[:0]
	for _, s := range stats {
		if _, dup := inv.sensors[s.SensorKey]; dup {
			continue
		}
		inv.sensors[s.SensorKey] = s
		inv.order = append(inv.order, s.SensorKey)
	}
	inv.cachedAt = time.Now()
	return nil
}

func (inv *Inventory) stat(key string) (host.TemperatureStat, error) {
	if err := inv.refresh(false); err != nil {
		return host.TemperatureStat{}, err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	s, ok := inv.sensors[key]
	if !ok {
		return host.TemperatureStat{}, errors.New().WithData(ErrSensorNotFound, key)
	}
	return s, nil
}

type sensor struct {
	inv *Inventory
	key string
}

func (s *sensor) Name() string {
	return s.key
}

func (s *sensor) Temperature() (float64, error) {
	stat, err := s.inv.stat(s.key)
	if err != nil {
		return 0, err
	}
	return stat.Temperature, nil
}

func (s *sensor) HighThreshold() (float64, error) {
	stat, err := s.inv.stat(s.key)
	if err != nil {
		return 0, err
	}
	if stat.High == 0 {
		return 0, errors.New().WithData(ErrNoThreshold, s.key)
	}
	return stat.High, nil
}

func (s *sensor) HighCriticalThreshold() (float64, error) {
	stat, err := s.inv.stat(s.key)
	if err != nil {
		return 0, err
	}
	if stat.Critical == 0 {
		return 0, errors.New().WithData(ErrNoThreshold, s.key)
	}
	return stat.Critical, nil
}
