// Package nvml exposes NVIDIA GPU fans and core temperatures as a
// cooling inventory.
package nvml

import (
	"fmt"
	"math"
	"sync"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type Limits struct {
	Min, Max int
}

// Inventory holds every GPU found at initialization.
type Inventory struct {
	gpus   []*gpu
	logger logger.Logger
}

type gpu struct {
	name   string
	device nvml.Device
	fans   int
	limits Limits
	mu     sync.Mutex
	// manual tracks fans taken out of automatic control
	manual map[int]bool
}

// New initializes NVML and enumerates the GPUs.
func New(log logger.Logger) (*Inventory, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrInitFailed, nvmlError(ret))
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceCountFailed, nvmlError(ret))
	}

	devices := make([]nvml.Device, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			nvml.Shutdown()
			return nil, errFactory.WithData(ErrDeviceNotFound, i)
		}
		devices = append(devices, device)
	}

	inv, err := newInventory(devices, log)
	if err != nil {
		nvml.Shutdown()
		return nil, err
	}
	return inv, nil
}

func newInventory(devices []nvml.Device, log logger.Logger) (*Inventory, error) {
	errFactory := errors.New()
	inv := &Inventory{logger: log}

	for i, device := range devices {
		g := &gpu{
			name:   fmt.Sprintf("GPU%d", i),
			device: device,
			manual: make(map[int]bool),
		}

		if name, ret := device.GetName(); ret == nvml.SUCCESS {
			log.Info().Str("gpu", g.name).Msgf("Detected GPU: %v", name)
		}

		count, ret := device.GetNumFans()
		if ret != nvml.SUCCESS {
			return nil, errFactory.Wrap(ErrFanCountFailed, nvmlError(ret))
		}
		g.fans = count

		if count > 0 {
			minSpeed, maxSpeed, ret := device.GetMinMaxFanSpeed()
			if ret != nvml.SUCCESS {
				return nil, errFactory.Wrap(ErrGetFanLimitsFailed, nvmlError(ret))
			}
			g.limits = Limits{Min: minSpeed, Max: maxSpeed}
		}

		log.Debug().
			Str("gpu", g.name).
			Int("fans", g.fans).
			Int("min_speed", g.limits.Min).
			Int("max_speed", g.limits.Max).
			Msg("GPU fans detected")

		inv.gpus = append(inv.gpus, g)
	}

	return inv, nil
}

func (inv *Inventory) Fans() []platform.FanDevice {
	var out []platform.FanDevice
	for _, g := range inv.gpus {
		for i := 0; i < g.fans; i++ {
			out = append(out, &fan{gpu: g, index: i})
		}
	}
	return out
}

func (inv *Inventory) Temps() []platform.TempDevice {
	out := make([]platform.TempDevice, 0, len(inv.gpus))
	for _, g := range inv.gpus {
		out = append(out, &temp{gpu: g})
	}
	return out
}

func (inv *Inventory) PsuSlots() []platform.PsuSlot {
	return nil
}

// Close hands every manually driven fan back to the driver and shuts
// NVML down.
func (inv *Inventory) Close() error {
	errFactory := errors.New()

	var firstErr error
	for _, g := range inv.gpus {
		if err := g.enableAuto(); err != nil {
			inv.logger.Warn().Str("gpu", g.name).Err(err).Msg("Failed to restore automatic fan control")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errFactory.Wrap(ErrShutdownFailed, nvmlError(ret))
	}
	return firstErr
}

func (g *gpu) enableAuto() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.manual {
		if ret := g.device.SetDefaultFanSpeed_v2(i); ret != nvml.SUCCESS {
			return errors.New().Wrap(ErrEnableAutoFan, nvmlError(ret))
		}
		delete(g.manual, i)
	}
	return nil
}

type fan struct {
	gpu   *gpu
	index int
}

func (f *fan) Name() string {
	return fmt.Sprintf("%s fan%d", f.gpu.name, f.index+1)
}

func (f *fan) Presence() (bool, error) {
	return true, nil
}

// Status reports whether the driver answers for the fan.
func (f *fan) Status() (bool, error) {
	_, err := f.Speed()
	return err == nil, nil
}

func (f *fan) Speed() (float64, error) {
	speed, ret := f.gpu.device.GetFanSpeed_v2(f.index)
	if ret != nvml.SUCCESS {
		return 0, errors.New().Wrap(ErrGetFanSpeedFailed, nvmlError(ret))
	}
	return float64(speed), nil
}

// SetSpeed clamps speed to the range the driver accepts.
func (f *fan) SetSpeed(speed float64) error {
	g := f.gpu
	g.mu.Lock()
	defer g.mu.Unlock()

	target := clamp(int(math.Round(speed)), g.limits.Min, g.limits.Max)
	if ret := g.device.SetFanSpeed_v2(f.index, target); ret != nvml.SUCCESS {
		return errors.New().Wrap(ErrSetFanSpeed, nvmlError(ret))
	}
	g.manual[f.index] = true
	return nil
}

type temp struct {
	gpu *gpu
}

func (t *temp) Name() string {
	return t.gpu.name
}

func (t *temp) Temperature() (float64, error) {
	v, ret := t.gpu.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, nvmlError(ret))
	}
	return float64(v), nil
}

// HighThreshold is the slowdown temperature.
func (t *temp) HighThreshold() (float64, error) {
	return t.threshold(nvml.TEMPERATURE_THRESHOLD_SLOWDOWN)
}

// HighCriticalThreshold is the shutdown temperature.
func (t *temp) HighCriticalThreshold() (float64, error) {
	return t.threshold(nvml.TEMPERATURE_THRESHOLD_SHUTDOWN)
}

func (t *temp) threshold(kind nvml.TemperatureThresholds) (float64, error) {
	v, ret := t.gpu.device.GetTemperatureThreshold(kind)
	if ret != nvml.SUCCESS {
		return 0, errors.New().Wrap(ErrThresholdReadFailed, nvmlError(ret))
	}
	return float64(v), nil
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
