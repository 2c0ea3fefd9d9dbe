package engine

import "errors"

// Input errors. These are caller mistakes, never retried, and surfaced with
// the offending detail by the HTTP shell.
var (
	// ErrMalformedSignal means the payload could not be read as a signal
	ErrMalformedSignal = errors.New("malformed signal")

	// ErrUnknownStrategy means the payload's discriminator names no
	// recognized signal kind
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// MissingFieldError names the first required field absent from a signal
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}
