package utils

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to the dashboard. Timeouts are reported distinctly
// from other upstream failures.
const (
	KindTimeout  = "timeout"
	KindUpstream = "upstream"
	KindDecode   = "decode"
)

// AppError wraps an operation, failure kind, human-facing message, and
// underlying error.
type AppError struct {
	Op   string
	Kind string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, kind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// IsTimeout reports whether err carries the timeout kind.
func IsTimeout(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Kind == KindTimeout
}
