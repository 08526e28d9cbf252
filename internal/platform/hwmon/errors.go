package hwmon

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	ErrSensorRead      = errors.ErrorCode("hwmon_sensor_read_failed")
	ErrSensorNotFound  = errors.ErrorCode("hwmon_sensor_not_found")
	ErrNoThreshold     = errors.ErrorCode("hwmon_no_threshold")
	ErrFanRead         = errors.ErrorCode("hwmon_fan_read_failed")
	ErrFanWrite        = errors.ErrorCode("hwmon_fan_write_failed")
	ErrInvalidPWMValue = errors.ErrorCode("hwmon_invalid_pwm_value")
)
