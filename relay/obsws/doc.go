// Package obsws implements the upstream side of the relay: a single persistent
// WebSocket session to obs-websocket (4.x protocol).
//
// The package provides:
//   - Connection setup including the GetAuthRequired/Authenticate handshake
//   - Fire-and-forget Emit
//   - Request/response Call with per-call timeout and correlation
//   - A receive loop that demultiplexes responses and dispatches events
//
// Message Protocol:
//
// Requests are JSON objects keyed by "request-type" and "message-id", with the
// payload fields merged in at the top level:
//
//	{"request-type": "SetVolume", "message-id": "5f0c...", "source": "Mic", "volume": 0.5}
//
// Responses echo the "message-id" and carry a "status" field. Frames carrying
// "update-type" instead are events.
//
// Usage:
//
//	client := obsws.NewClient("localhost", 4444, "secret")
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	version, err := client.Call(ctx, "GetVersion", nil)
//
// Concurrency:
//
// Emit and Call are safe for concurrent use. The outstanding-request table is
// guarded by a mutex; only the receive loop resolves entries, and a call that
// times out or is cancelled removes its own entry.
package obsws
