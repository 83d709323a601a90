package interp

import "fmt"

// GuestError is a runtime error raised by guest code (as opposed to a Go
// error in the interpreter's own plumbing). Its Type/Message pair maps
// directly onto the trace collector's exception step payload.
type GuestError struct {
	ErrType string
	Message string
}

func (e *GuestError) Error() string { return fmt.Sprintf("%s: %s", e.ErrType, e.Message) }

func newGuestError(errType, format string, args ...interface{}) *GuestError {
	return &GuestError{ErrType: errType, Message: fmt.Sprintf(format, args...)}
}

// AsGuestError extracts a GuestError's fields, defaulting to a generic
// RuntimeError for any other Go error reaching the boundary.
func AsGuestError(err error) (errType, message string) {
	if ge, ok := err.(*GuestError); ok {
		return ge.ErrType, ge.Message
	}
	return "RuntimeError", err.Error()
}
