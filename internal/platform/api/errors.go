package api

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	ErrRequestFailed = errors.ErrorCode("api_request_failed")
	ErrBadStatus     = errors.ErrorCode("api_bad_status")
	ErrNotFound      = errors.ErrorCode("api_not_found")
	ErrFieldMissing  = errors.ErrorCode("api_field_missing")
)
