package nvml

import (
	"codeberg.org/mutker/chassisctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrInitFailed        = errors.ErrorCode("nvml_init_failed")
	ErrShutdownFailed    = errors.ErrorCode("nvml_shutdown_failed")
	ErrDeviceCountFailed = errors.ErrorCode("nvml_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("nvml_device_not_found")

	ErrTemperatureReadFailed = errors.ErrorCode("nvml_temperature_read_failed")
	ErrThresholdReadFailed   = errors.ErrorCode("nvml_threshold_read_failed")

	ErrFanCountFailed     = errors.ErrorCode("nvml_fan_count_failed")
	ErrGetFanSpeedFailed  = errors.ErrorCode("nvml_fan_speed_failed")
	ErrGetFanLimitsFailed = errors.ErrorCode("nvml_fan_limits_failed")
	ErrSetFanSpeed        = errors.ErrorCode("nvml_set_fan_speed_failed")
	ErrEnableAutoFan      = errors.ErrorCode("nvml_enable_auto_fan_failed")
)

// nvmlError carries a failed return code as the cause of a coded error.
type nvmlError nvml.Return

func (e nvmlError) Error() string {
	return nvml.ErrorString(nvml.Return(e))
}
