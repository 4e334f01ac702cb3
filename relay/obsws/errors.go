package obsws

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned by Call when no session is open.
	ErrNotConnected = errors.New("not connected to obs-websocket")

	// ErrConnectionClosed is returned to calls that were outstanding when the
	// session dropped.
	ErrConnectionClosed = errors.New("obs-websocket connection closed")
)

// TimeoutError reports a call that did not receive its response in time.
type TimeoutError struct {
	RequestType string
	After       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("the request with type %s timed out after %s", e.RequestType, e.After)
}

// ConnectionError reports a failure to open or authenticate the session.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to obs-websocket at %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a call timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
