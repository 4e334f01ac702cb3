package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGate_Check(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		header  []string
		wantErr error
	}{
		{name: "no key, no header", key: "", header: nil, wantErr: nil},
		{name: "no key, any header", key: "", header: []string{"whatever"}, wantErr: nil},
		{name: "key, missing header", key: "secret1", header: nil, wantErr: ErrMissingKey},
		{name: "key, matching header", key: "secret1", header: []string{"secret1"}, wantErr: nil},
		{name: "key, mismatched header", key: "secret1", header: []string{"secret2"}, wantErr: ErrBadKey},
		{name: "key, case differs", key: "secret1", header: []string{"SECRET1"}, wantErr: ErrBadKey},
		{name: "key, empty header value", key: "secret1", header: []string{""}, wantErr: ErrBadKey},
		{name: "key, prefix only", key: "secret1", header: []string{"secret"}, wantErr: ErrBadKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.key)
			h := http.Header{}
			for _, v := range tt.header {
				h.Add(HeaderName, v)
			}

			err := gate.Check(h)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGate_HeaderNameIsCaseInsensitive(t *testing.T) {
	gate := NewGate("secret1")

	r := httptest.NewRequest("POST", "/call/GetVersion", nil)
	r.Header.Set("authkey", "secret1")

	if err := gate.Check(r.Header); err != nil {
		t.Errorf("Expected lower-case header name to be accepted, got %v", err)
	}
}

func TestGate_Enabled(t *testing.T) {
	if NewGate("").Enabled() {
		t.Error("Gate with empty key should be disabled")
	}
	if !NewGate("k").Enabled() {
		t.Error("Gate with key should be enabled")
	}

	var nilGate *Gate
	if nilGate.Enabled() {
		t.Error("nil gate should be disabled")
	}
	if err := nilGate.Check(http.Header{}); err != nil {
		t.Errorf("nil gate should authorize, got %v", err)
	}
}

func TestGate_CheckRequestQueryFallback(t *testing.T) {
	gate := NewGate("secret1")

	r := httptest.NewRequest("GET", "/ws?authkey=secret1", nil)
	if err := gate.CheckRequest(r); err != nil {
		t.Errorf("Expected query key to be accepted, got %v", err)
	}

	r = httptest.NewRequest("GET", "/ws?authkey=nope", nil)
	if !errors.Is(gate.CheckRequest(r), ErrBadKey) {
		t.Error("Expected bad query key to be rejected")
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if !errors.Is(gate.CheckRequest(r), ErrMissingKey) {
		t.Error("Expected missing key to be rejected")
	}

	// The header wins over the query parameter.
	r = httptest.NewRequest("GET", "/ws?authkey=secret1", nil)
	r.Header.Set(HeaderName, "wrong")
	if !errors.Is(gate.CheckRequest(r), ErrBadKey) {
		t.Error("Expected header to take precedence over query parameter")
	}
}

func TestGate_Middleware(t *testing.T) {
	gate := NewGate("secret1")

	var denied error
	reached := false
	handler := gate.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		denied = err
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	r := httptest.NewRequest("POST", "/emit/SetVolume", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if reached || !errors.Is(denied, ErrMissingKey) {
		t.Errorf("Expected request without key to be denied (reached=%v, err=%v)", reached, denied)
	}

	denied = nil
	r = httptest.NewRequest("POST", "/emit/SetVolume", nil)
	r.Header.Set(HeaderName, "secret1")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if !reached || denied != nil {
		t.Errorf("Expected request with key to pass (reached=%v, err=%v)", reached, denied)
	}
}
