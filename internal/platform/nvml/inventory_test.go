package nvml

import (
	"testing"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ platform.Inventory = (*Inventory)(nil)

func newMockDevice(speeds map[int]uint32) (*mock.Device, map[int]int) {
	written := make(map[int]int)
	dev := &mock.Device{
		GetNameFunc: func() (string, nvml.Return) {
			return "NVIDIA GeForce RTX 4090", nvml.SUCCESS
		},
		GetNumFansFunc: func() (int, nvml.Return) {
			return len(speeds), nvml.SUCCESS
		},
		GetMinMaxFanSpeedFunc: func() (int, int, nvml.Return) {
			return 30, 100, nvml.SUCCESS
		},
		GetFanSpeed_v2Func: func(n int) (uint32, nvml.Return) {
			s, ok := speeds[n]
			if !ok {
				return 0, nvml.ERROR_INVALID_ARGUMENT
			}
			return s, nvml.SUCCESS
		},
		SetFanSpeed_v2Func: func(n1 int, n2 int) nvml.Return {
			written[n1] = n2
			speeds[n1] = uint32(n2)
			return nvml.SUCCESS
		},
		SetDefaultFanSpeed_v2Func: func(n int) nvml.Return {
			delete(written, n)
			return nvml.SUCCESS
		},
		GetTemperatureFunc: func(_ nvml.TemperatureSensors) (uint32, nvml.Return) {
			return 64, nvml.SUCCESS
		},
		GetTemperatureThresholdFunc: func(kind nvml.TemperatureThresholds) (uint32, nvml.Return) {
			switch kind {
			case nvml.TEMPERATURE_THRESHOLD_SLOWDOWN:
				return 87, nvml.SUCCESS
			case nvml.TEMPERATURE_THRESHOLD_SHUTDOWN:
				return 92, nvml.SUCCESS
			default:
				return 0, nvml.ERROR_NOT_SUPPORTED
			}
		},
	}
	return dev, written
}

func TestInventoryFans(t *testing.T) {
	dev, written := newMockDevice(map[int]uint32{0: 40, 1: 42})
	inv, err := newInventory([]nvml.Device{dev}, logger.With("nvml"))
	require.NoError(t, err)

	fans := inv.Fans()
	require.Len(t, fans, 2)
	assert.Equal(t, "GPU0 fan1", fans[0].Name())
	assert.Equal(t, "GPU0 fan2", fans[1].Name())

	speed, err := fans[1].Speed()
	require.NoError(t, err)
	assert.Equal(t, 42.0, speed)

	ok, err := fans[0].Status()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fans[0].SetSpeed(55.4))
	require.NoError(t, fans[1].SetSpeed(10))
	assert.Equal(t, map[int]int{0: 55, 1: 30}, written, "speeds are rounded and clamped")

	g := inv.gpus[0]
	require.NoError(t, g.enableAuto())
	assert.Empty(t, written)
	assert.Empty(t, g.manual)
}

func TestInventoryTemps(t *testing.T) {
	dev, _ := newMockDevice(nil)
	inv, err := newInventory([]nvml.Device{dev}, logger.With("nvml"))
	require.NoError(t, err)

	assert.Empty(t, inv.Fans())
	temps := inv.Temps()
	require.Len(t, temps, 1)
	assert.Equal(t, "GPU0", temps[0].Name())

	v, err := temps[0].Temperature()
	require.NoError(t, err)
	assert.Equal(t, 64.0, v)
	high, err := temps[0].HighThreshold()
	require.NoError(t, err)
	assert.Equal(t, 87.0, high)
	crit, err := temps[0].HighCriticalThreshold()
	require.NoError(t, err)
	assert.Equal(t, 92.0, crit)
}

func TestInventoryFanCountFailure(t *testing.T) {
	dev := &mock.Device{
		GetNameFunc: func() (string, nvml.Return) { return "", nvml.ERROR_UNKNOWN },
		GetNumFansFunc: func() (int, nvml.Return) {
			return 0, nvml.ERROR_NOT_SUPPORTED
		},
	}
	_, err := newInventory([]nvml.Device{dev}, logger.With("nvml"))
	assert.True(t, errors.HasCode(err, ErrFanCountFailed))
}
