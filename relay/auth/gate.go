// Package auth decides whether an inbound HTTP request may reach the relay.
//
// A Gate holds one shared secret. With no secret every request passes; with a
// secret the request must carry an AuthKey header whose value matches it
// exactly.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// HeaderName is the request header carrying the shared secret.
const HeaderName = "AuthKey"

var (
	// ErrMissingKey is returned when a secret is configured and the request
	// has no AuthKey header.
	ErrMissingKey = errors.New("AuthKey header is required.")

	// ErrBadKey is returned when the AuthKey header does not match.
	ErrBadKey = errors.New("Bad AuthKey")
)

// Gate checks requests against a single shared secret.
type Gate struct {
	key []byte
}

// NewGate returns a gate for key. An empty key disables authentication.
func NewGate(key string) *Gate {
	if key == "" {
		return &Gate{}
	}
	return &Gate{key: []byte(key)}
}

// Enabled reports whether a secret is configured.
func (g *Gate) Enabled() bool {
	return g != nil && len(g.key) > 0
}

// Check validates the AuthKey header in h.
func (g *Gate) Check(h http.Header) error {
	if !g.Enabled() {
		return nil
	}

	values := h.Values(HeaderName)
	if len(values) == 0 {
		return ErrMissingKey
	}
	return g.compare(values[0])
}

// CheckRequest is Check with a fallback to the "authkey" query parameter, for
// clients such as browsers that cannot set headers on a WebSocket upgrade.
func (g *Gate) CheckRequest(r *http.Request) error {
	if !g.Enabled() {
		return nil
	}
	if len(r.Header.Values(HeaderName)) == 0 {
		if v := r.URL.Query().Get("authkey"); v != "" {
			return g.compare(v)
		}
	}
	return g.Check(r.Header)
}

func (g *Gate) compare(value string) error {
	if subtle.ConstantTimeCompare([]byte(value), g.key) != 1 {
		return ErrBadKey
	}
	return nil
}

// Middleware rejects unauthorized requests by calling deny with the reason and
// passes the rest to next.
func (g *Gate) Middleware(deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r.Header); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
