package publish

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	ErrConnectFailed = errors.ErrorCode("publish_connect_failed")
	ErrQueueFull     = errors.ErrorCode("publish_queue_full")
	ErrClosed        = errors.ErrorCode("publish_closed")
	ErrEncodeFailed  = errors.ErrorCode("publish_encode_failed")
)
