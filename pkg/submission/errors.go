package submission

import (
	"errors"
	"fmt"
)

type Class string

const (
	// ClassFatal is a business rejection; the same operations will never apply.
	ClassFatal Class = "fatal"
	// ClassTransient means retries were exhausted without a verdict; a later replay may succeed.
	ClassTransient Class = "transient"
)

// Error is returned by Submit when a transaction could not be applied.
type Error struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("submission %s after %d attempt(s): %v", e.Class, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Fatal() bool { return e.Class == ClassFatal }

// AsError extracts a submission *Error from err.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
