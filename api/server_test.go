package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/obs-http-relay/relay/auth"
	"github.com/wricardo/obs-http-relay/relay/obsws"
	"github.com/wricardo/obs-http-relay/relay/service"
	"github.com/wricardo/obs-http-relay/transport/websocket"
)

// MockRelayService implements service.RelayService for testing
type MockRelayService struct {
	EmitFunc   func(ctx context.Context, requestType string, body []byte)
	CallFunc   func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error)
	StatusFunc func(ctx context.Context) *service.Status
}

func (m *MockRelayService) Emit(ctx context.Context, requestType string, body []byte) {
	if m.EmitFunc != nil {
		m.EmitFunc(ctx, requestType, body)
	}
}

func (m *MockRelayService) Call(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
	if m.CallFunc != nil {
		return m.CallFunc(ctx, requestType, body)
	}
	p, _ := obsws.ParsePayload([]byte(`{"status":"ok"}`))
	return p, nil
}

func (m *MockRelayService) Status(ctx context.Context) *service.Status {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &service.Status{Upstream: obsws.Connected.String(), Address: "ws://127.0.0.1:4444", Pending: 0}
}

// Test helpers
func setupTestServer(mockService *MockRelayService, authKey string) *Server {
	hub := websocket.NewHub()
	return NewServer(mockService, auth.NewGate(authKey), WithHub(hub))
}

func makeRequest(method, path, body string, authKey string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if authKey != "" {
		req.Header.Set(auth.HeaderName, authKey)
	}
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v (body %q)", err, w.Body.String())
	}
}

func mustPayload(t *testing.T, raw string) *obsws.Payload {
	t.Helper()
	p, err := obsws.ParsePayload([]byte(raw))
	if err != nil {
		t.Fatalf("bad payload %s: %v", raw, err)
	}
	return p
}

// Relay Operation Tests

func TestEmit(t *testing.T) {
	tests := []struct {
		name        string
		serverKey   string
		requestKey  string
		body        string
		expectEmit  bool
		expectedErr string
	}{
		{
			name:       "Emit without auth configured",
			body:       `{"source":"Mic","volume":0.5}`,
			expectEmit: true,
		},
		{
			name:       "Emit with correct key",
			serverKey:  "secret1",
			requestKey: "secret1",
			body:       `{"source":"Mic","volume":0.5}`,
			expectEmit: true,
		},
		{
			name:        "Emit with missing key",
			serverKey:   "secret1",
			body:        `{"source":"Mic","volume":0.5}`,
			expectedErr: "AuthKey header is required.",
		},
		{
			name:        "Emit with wrong key",
			serverKey:   "secret1",
			requestKey:  "secret2",
			body:        `{}`,
			expectedErr: "Bad AuthKey",
		},
		{
			name:       "Emit with malformed body still answers ok",
			body:       `not json`,
			expectEmit: true,
		},
		{
			name:       "Emit with empty body",
			body:       ``,
			expectEmit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotType string
			var gotBody []byte
			emitted := false
			mockService := &MockRelayService{
				EmitFunc: func(ctx context.Context, requestType string, body []byte) {
					emitted = true
					gotType = requestType
					gotBody = body
				},
			}

			server := setupTestServer(mockService, tt.serverKey)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/emit/SetVolume", tt.body, tt.requestKey))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}

			var resp map[string]string
			parseResponse(t, w, &resp)

			if tt.expectedErr != "" {
				if resp["status"] != "error" || resp["error"] != tt.expectedErr {
					t.Errorf("Expected error %q, got %v", tt.expectedErr, resp)
				}
				if emitted {
					t.Error("Unauthorized request must not reach the relay")
				}
				return
			}

			if resp["status"] != "ok" || len(resp) != 1 {
				t.Errorf("Expected {\"status\":\"ok\"}, got %v", resp)
			}
			if emitted != tt.expectEmit {
				t.Errorf("Expected emit %v, got %v", tt.expectEmit, emitted)
			}
			if gotType != "SetVolume" {
				t.Errorf("Expected request type SetVolume, got %s", gotType)
			}
			if string(gotBody) != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, gotBody)
			}
		})
	}
}

func TestCall(t *testing.T) {
	tests := []struct {
		name         string
		serverKey    string
		requestKey   string
		body         string
		setupMock    func(*MockRelayService)
		validateResp func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:       "Call returns upstream response in order",
			serverKey:  "secret1",
			requestKey: "secret1",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					if requestType != "GetVersion" {
						t.Errorf("Expected GetVersion, got %s", requestType)
					}
					return mustPayload(t, `{"status":"ok","obs-websocket-version":"4.9.1","obs-studio-version":"27.0.0"}`), nil
				}
			},
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				want := `{"status":"ok","obs-websocket-version":"4.9.1","obs-studio-version":"27.0.0"}`
				if got := strings.TrimSpace(w.Body.String()); got != want {
					t.Errorf("Expected body %s, got %s", want, got)
				}
				if ct := w.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected application/json, got %s", ct)
				}
			},
		},
		{
			name: "Call passes upstream errors through as data",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return mustPayload(t, `{"status":"error","error":"specified source doesn't exist"}`), nil
				}
			},
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "specified source doesn't exist" {
					t.Errorf("Expected upstream error, got %v", resp)
				}
			},
		},
		{
			name:         "Call with missing key",
			serverKey:    "secret1",
			setupMock:    func(m *MockRelayService) { m.CallFunc = unexpectedCall(t) },
			validateResp: expectError("AuthKey header is required."),
		},
		{
			name:         "Call with wrong key",
			serverKey:    "secret1",
			requestKey:   "SECRET1",
			setupMock:    func(m *MockRelayService) { m.CallFunc = unexpectedCall(t) },
			validateResp: expectError("Bad AuthKey"),
		},
		{
			name: "Call timeout",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return nil, &obsws.TimeoutError{RequestType: requestType, After: 30 * time.Second}
				}
			},
			validateResp: expectError(MsgTimeout),
		},
		{
			name: "Call with malformed body",
			body: `[1,2,3]`,
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return nil, fmt.Errorf("%w: %v", service.ErrMalformedPayload, obsws.ErrNotObject)
				}
			},
			validateResp: expectError(MsgMalformedPayload),
		},
		{
			name: "Call while disconnected",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return nil, fmt.Errorf("%w: %w", service.ErrUpstreamUnavailable, obsws.ErrNotConnected)
				}
			},
			validateResp: expectError(MsgNotConnected),
		},
		{
			name: "Call interrupted by connection loss",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return nil, obsws.ErrConnectionClosed
				}
			},
			validateResp: expectError(MsgConnectionClosed),
		},
		{
			name: "Call with other error",
			setupMock: func(m *MockRelayService) {
				m.CallFunc = func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
					return nil, errors.New("boom")
				}
			},
			validateResp: expectError("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRelayService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(mockService, tt.serverKey)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/call/GetVersion", tt.body, tt.requestKey))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func unexpectedCall(t *testing.T) func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
	return func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
		t.Errorf("Unexpected call to relay for %s", requestType)
		return nil, nil
	}
}

func expectError(message string) func(*testing.T, *httptest.ResponseRecorder) {
	return func(t *testing.T, w *httptest.ResponseRecorder) {
		var resp map[string]string
		parseResponse(t, w, &resp)
		if resp["status"] != "error" || resp["error"] != message {
			t.Errorf("Expected error %q, got %v", message, resp)
		}
	}
}

func TestCallKeepsUpstreamBytes(t *testing.T) {
	raw := `{"status":"ok","name":"<b>Live & Loud</b>","volume":1.50}`
	mockService := &MockRelayService{
		CallFunc: func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
			return mustPayload(t, raw), nil
		},
	}

	server := setupTestServer(mockService, "")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/call/GetSourceSettings", "", ""))

	if got := strings.TrimSpace(w.Body.String()); got != raw {
		t.Errorf("Expected body %s, got %s", raw, got)
	}
}

// objectOfSize returns a valid JSON object exactly n bytes long.
func objectOfSize(n int) string {
	prefix, suffix := `{"text":"`, `"}`
	return prefix + strings.Repeat("x", n-len(prefix)-len(suffix)) + suffix
}

func TestBodyTooLarge(t *testing.T) {
	body := objectOfSize(maxBodySize + 1)
	if !json.Valid([]byte(body)) {
		t.Fatal("oversized body should be valid JSON")
	}

	emitted := false
	mockService := &MockRelayService{
		EmitFunc: func(ctx context.Context, requestType string, body []byte) { emitted = true },
		CallFunc: unexpectedCall(t),
	}
	server := setupTestServer(mockService, "")

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/call/SetTextFreetype2Properties", body, ""))
	expectError(MsgBodyTooLarge)(t, w)

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/emit/SetTextFreetype2Properties", body, ""))
	expectError(MsgBodyTooLarge)(t, w)
	if emitted {
		t.Error("Oversized emit must not be forwarded")
	}

	// Exactly at the limit is still accepted.
	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/emit/SetTextFreetype2Properties", objectOfSize(maxBodySize), ""))
	var resp map[string]string
	parseResponse(t, w, &resp)
	if resp["status"] != "ok" || !emitted {
		t.Errorf("Expected body at the limit to be emitted, got %v", resp)
	}
}

func TestCallForwardsBody(t *testing.T) {
	var gotBody string
	mockService := &MockRelayService{
		CallFunc: func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
			gotBody = string(body)
			return mustPayload(t, `{"status":"ok"}`), nil
		},
	}

	server := setupTestServer(mockService, "")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/call/SetVolume", `{"source":"Mic","volume":0.5}`, ""))

	if gotBody != `{"source":"Mic","volume":0.5}` {
		t.Errorf("Expected body to be forwarded verbatim, got %q", gotBody)
	}
}

func TestCallAbandonedByClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockService := &MockRelayService{
		CallFunc: func(ctx context.Context, requestType string, body []byte) (*obsws.Payload, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	server := setupTestServer(mockService, "")
	w := httptest.NewRecorder()
	req := makeRequest("POST", "/call/GetVersion", "", "").WithContext(ctx)
	server.ServeHTTP(w, req)

	if w.Body.Len() != 0 {
		t.Errorf("Expected no body for an abandoned call, got %q", w.Body.String())
	}
}

func TestNilRelayService(t *testing.T) {
	server := NewServer(nil, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/call/GetVersion", "", ""))
	expectError(MsgNotConnected)(t, w)

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/emit/SetVolume", "", ""))
	var resp map[string]string
	parseResponse(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected emit to answer ok, got %v", resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := setupTestServer(&MockRelayService{}, "")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/call/GetVersion", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

// Monitoring Tests

func TestHealth(t *testing.T) {
	tests := []struct {
		name           string
		status         *service.Status
		expectedHealth string
	}{
		{
			name:           "Connected upstream",
			status:         &service.Status{Upstream: "connected", Address: "ws://127.0.0.1:4444", Pending: 2},
			expectedHealth: "healthy",
		},
		{
			name:           "Disconnected upstream",
			status:         &service.Status{Upstream: "disconnected"},
			expectedHealth: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRelayService{
				StatusFunc: func(ctx context.Context) *service.Status { return tt.status },
			}

			// Health is not gated.
			server := setupTestServer(mockService, "secret1")
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}

			var resp map[string]interface{}
			parseResponse(t, w, &resp)
			if resp["status"] != tt.expectedHealth {
				t.Errorf("Expected health %s, got %v", tt.expectedHealth, resp["status"])
			}
			if resp["upstream"] != tt.status.Upstream {
				t.Errorf("Expected upstream %s, got %v", tt.status.Upstream, resp["upstream"])
			}
			if int(resp["pending"].(float64)) != tt.status.Pending {
				t.Errorf("Expected pending %d, got %v", tt.status.Pending, resp["pending"])
			}
		})
	}
}

func TestWebSocket(t *testing.T) {
	tests := []struct {
		name          string
		serverKey     string
		query         string
		header        string
		expectedError string
		expectUpgrade bool
	}{
		{
			name:          "No auth configured",
			expectUpgrade: true,
		},
		{
			name:          "Missing key",
			serverKey:     "secret1",
			expectedError: "AuthKey header is required.",
		},
		{
			name:          "Wrong query key",
			serverKey:     "secret1",
			query:         "?authkey=nope",
			expectedError: "Bad AuthKey",
		},
		{
			name:          "Query key",
			serverKey:     "secret1",
			query:         "?authkey=secret1&events=SwitchScenes",
			expectUpgrade: true,
		},
		{
			name:          "Header key",
			serverKey:     "secret1",
			header:        "secret1",
			expectUpgrade: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(&MockRelayService{}, tt.serverKey)
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(auth.HeaderName, tt.header)
			}
			req.Header.Set("Upgrade", "websocket")
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
			req.Header.Set("Sec-WebSocket-Version", "13")

			server.handleWebSocket(w, req)

			if tt.expectUpgrade {
				// httptest.ResponseRecorder does not implement http.Hijacker,
				// so an attempted upgrade surfaces as a 500.
				if w.Code != http.StatusInternalServerError {
					t.Errorf("Expected attempted upgrade, got %d %s", w.Code, w.Body.String())
				}
				return
			}

			expectError(tt.expectedError)(t, w)
		})
	}
}

// Static File Tests

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>overlay</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := NewServer(&MockRelayService{}, auth.NewGate("secret1"), WithStaticDir(dir))

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/index.html", nil))
	if w.Code != http.StatusMovedPermanently && w.Code != http.StatusOK {
		t.Fatalf("Expected static file, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "overlay") {
		t.Errorf("Expected index.html to be served, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/missing.js", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestStaticFilesHidesSecrets(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.html":          "<h1>overlay</h1>",
		"sws_http_config.ini": "[http]\nauthentication_key = secret1\n",
		".env":                "OBS_WS_PASSWORD=pw\n",
		"scenes/backup.INI":   "[obsws]\nws_password = pw\n",
		".git/config":         "[core]\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	server := NewServer(&MockRelayService{}, auth.NewGate("secret1"), WithStaticDir(dir))

	for _, path := range []string{"/sws_http_config.ini", "/.env", "/scenes/backup.INI", "/.git/config", "/.git/"} {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d %q", path, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/scenes/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected directory listing, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "backup") {
		t.Errorf("Listing should hide config files, got %q", w.Body.String())
	}
}

func TestNoStaticDir(t *testing.T) {
	server := setupTestServer(&MockRelayService{}, "")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
