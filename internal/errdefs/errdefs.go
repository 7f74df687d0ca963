// Package errdefs holds the error kinds shared by the sampler, the event
// logger and the log parsers. Callers match them with errors.Is.
package errdefs

import "errors"

var (
	// ErrInvalidArgument marks bad configuration: a negative or too small
	// sampling interval, or an event name containing the field separator.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState marks API misuse such as ending an event on a sink
	// that was never opened.
	ErrInvalidState = errors.New("invalid state")
	// ErrMalformedLog marks a log file whose structure cannot be decoded.
	ErrMalformedLog = errors.New("malformed log")
	// ErrBackend marks a metrics backend that could not be initialized.
	ErrBackend = errors.New("backend unavailable")
)

// Kind names the sentinel err wraps so it can cross a process boundary.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrMalformedLog):
		return "malformed_log"
	case errors.Is(err, ErrBackend):
		return "backend"
	}
	return ""
}

// FromKind is the inverse of Kind. Unknown kinds return nil.
func FromKind(kind string) error {
	switch kind {
	case "invalid_argument":
		return ErrInvalidArgument
	case "invalid_state":
		return ErrInvalidState
	case "malformed_log":
		return ErrMalformedLog
	case "backend":
		return ErrBackend
	}
	return nil
}
