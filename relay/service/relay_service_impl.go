package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/wricardo/obs-http-relay/relay/obsws"
)

// relayService implements RelayService on top of an Upstream.
type relayService struct {
	upstream Upstream
}

// NewRelayService creates a RelayService. A nil upstream is allowed: calls then
// fail with ErrUpstreamUnavailable and emits are dropped.
func NewRelayService(upstream Upstream) RelayService {
	return &relayService{upstream: upstream}
}

func (s *relayService) Emit(ctx context.Context, requestType string, body []byte) {
	data, err := decodeBody(body)
	if err != nil {
		log.Debugf("emit %s: sending without payload: %v", requestType, err)
		data = nil
	}

	if s.upstream == nil {
		log.Debugf("emit %s dropped: %v", requestType, ErrUpstreamUnavailable)
		return
	}
	s.upstream.Emit(requestType, data)
}

func (s *relayService) Call(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
	data, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if s.upstream == nil {
		return nil, ErrUpstreamUnavailable
	}

	resp, err := s.upstream.Call(ctx, requestType, data)
	if err != nil {
		if errors.Is(err, obsws.ErrNotConnected) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (s *relayService) Status(ctx context.Context) *Status {
	if s.upstream == nil {
		return &Status{Upstream: obsws.Disconnected.String()}
	}
	return &Status{
		Upstream: s.upstream.State().String(),
		Address:  s.upstream.Address(),
		Pending:  s.upstream.Pending(),
	}
}

// decodeBody turns a request body into a payload. Empty and "null" bodies mean
// no payload.
func decodeBody(body []byte) (*obsws.Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return obsws.ParsePayload(trimmed)
}
