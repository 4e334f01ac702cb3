package obsws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeUpstream is a minimal obs-websocket server. reply is called for every
// request frame and returns the frames to write back, in order.
type fakeUpstream struct {
	server *httptest.Server
	reply  func(conn *websocket.Conn, req map[string]any) []map[string]any

	mu       sync.Mutex
	received []map[string]any
	raw      []string
	requests chan map[string]any
}

func newFakeUpstream(t *testing.T, reply func(conn *websocket.Conn, req map[string]any) []map[string]any) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		reply:    reply,
		requests: make(chan map[string]any, 64),
	}

	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req map[string]any
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}

			f.mu.Lock()
			f.received = append(f.received, req)
			f.raw = append(f.raw, string(data))
			f.mu.Unlock()

			select {
			case f.requests <- req:
			default:
			}

			var frames []map[string]any
			if req["request-type"] == "GetAuthRequired" && f.reply == nil {
				frames = []map[string]any{{"message-id": req["message-id"], "status": "ok", "authRequired": false}}
			} else if f.reply != nil {
				frames = f.reply(conn, req)
			}

			for _, frame := range frames {
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(f.server.Close)

	return f
}

// noAuth answers GetAuthRequired with authRequired=false and defers everything
// else to next.
func noAuth(next func(conn *websocket.Conn, req map[string]any) []map[string]any) func(*websocket.Conn, map[string]any) []map[string]any {
	return func(conn *websocket.Conn, req map[string]any) []map[string]any {
		if req["request-type"] == "GetAuthRequired" {
			return []map[string]any{{"message-id": req["message-id"], "status": "ok", "authRequired": false}}
		}
		if next == nil {
			return nil
		}
		return next(conn, req)
	}
}

// url returns the ws:// address of the fake server.
func (f *fakeUpstream) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeUpstream) requestTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var types []string
	for _, req := range f.received {
		if rt, ok := req["request-type"].(string); ok {
			types = append(types, rt)
		}
	}
	return types
}

func (f *fakeUpstream) rawRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.raw...)
}
