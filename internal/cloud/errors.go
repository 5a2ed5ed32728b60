package cloud

import (
	"errors"
	"fmt"
)

// ErrFlightNotFound is returned by VerifyFlight when the flight registry has
// no match. Callers fall back to a manual override.
var ErrFlightNotFound = errors.New("cloud: flight not found")

// TransportError means the request never produced an HTTP response:
// the network is unreachable, the connection dropped or the call timed out.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cloud: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError means the server answered with a non-2xx status or a body
// that could not be decoded.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cloud: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("cloud: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsTransport reports whether err is, or wraps, a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
