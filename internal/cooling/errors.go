package cooling

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	// Source Errors
	ErrSourceUnavailable = errors.ErrorCode("cooling_source_unavailable")
	ErrSourceStale       = errors.ErrorCode("cooling_source_stale")
	ErrSourcePanic       = errors.ErrorCode("cooling_source_panic")
	ErrEnumeration       = errors.ErrorCode("cooling_enumeration_failed")

	// Fan Control Errors
	ErrFanWriteFailed = errors.ErrorCode("cooling_fan_write_failed")
	ErrFanNoWriter    = errors.ErrorCode("cooling_fan_no_writer")

	// Export Errors
	ErrExportFailed = errors.ErrorCode("cooling_export_failed")
)
