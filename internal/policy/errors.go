package policy

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	ErrReadFailed  = errors.ErrorCode("policy_read_failed")
	ErrParseFailed = errors.ErrorCode("policy_parse_failed")
	ErrUnknownType = errors.ErrorCode("policy_unknown_type")
	ErrArgMissing  = errors.ErrorCode("policy_arg_missing")
	ErrInvalidArg  = errors.ErrorCode("policy_invalid_arg")
	ErrInfoMissing = errors.ErrorCode("policy_info_missing")
	ErrDuplicate   = errors.ErrorCode("policy_duplicate")
	ErrNoAlgorithm = errors.ErrorCode("policy_no_algorithm")
)
