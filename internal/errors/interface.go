package errors

// ErrorCode classifies a failure. Packages declare their own codes in an
// errors.go next to the code returning them.
type ErrorCode string

// Error is an error carrying an ErrorCode. WithMessage and WithData return
// modified copies and leave the receiver untouched.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
