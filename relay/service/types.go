package service

import (
	"context"
	"errors"

	"github.com/wricardo/obs-http-relay/relay/obsws"
)

var (
	// ErrMalformedPayload is returned by Call for a non-empty body that is not
	// a JSON object.
	ErrMalformedPayload = errors.New("request body must be a JSON object")

	// ErrUpstreamUnavailable is returned by Call when there is no open session.
	ErrUpstreamUnavailable = errors.New("upstream is not available")
)

// Upstream is the subset of *obsws.Client the service depends on.
type Upstream interface {
	Emit(requestType string, data *obsws.Payload)
	Call(ctx context.Context, requestType string, data *obsws.Payload) (*obsws.Payload, error)
	State() obsws.State
	Pending() int
	Address() string
}

// Status describes the upstream session for health checks.
type Status struct {
	Upstream string `json:"upstream"`
	Address  string `json:"address,omitempty"`
	Pending  int    `json:"pending"`
}

// Connected reports whether the session is open.
func (s *Status) Connected() bool {
	return s.Upstream == obsws.Connected.String()
}
