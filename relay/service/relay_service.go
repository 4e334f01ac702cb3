package service

import (
	"context"

	"github.com/wricardo/obs-http-relay/relay/obsws"
)

// RelayService defines the operations exposed by the relay.
type RelayService interface {
	// Emit forwards a request and returns without waiting. Delivery is at most
	// once; failures are logged and discarded.
	Emit(ctx context.Context, requestType string, body []byte)

	// Call forwards a request and returns the upstream response. Errors are
	// ErrMalformedPayload, ErrUpstreamUnavailable, obsws.ErrConnectionClosed,
	// *obsws.TimeoutError or the context's error.
	Call(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error)

	// Status reports the upstream session state.
	Status(ctx context.Context) *Status
}
