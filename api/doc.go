// Package api provides the HTTP surface of the relay.
//
// Endpoints:
//
// Relay Operations:
//   - POST /emit/{type} - Forward a request without waiting for the response
//   - POST /call/{type} - Forward a request and return the upstream response
//
// Monitoring:
//   - GET /health - Upstream session state
//   - GET /ws - WebSocket stream of upstream events (optional ?events= filter)
//
// Static Files:
//   - GET /{path} - Files from the configured static directory (dotfiles and .ini files are never served)
//
// Request/Response Format:
//
// {type} is the obs-websocket request type, for example GetVersion or
// SetVolume. The optional JSON object body carries the request fields:
//
//	POST /call/SetVolume
//	AuthKey: secret1
//
//	{"source": "Mic", "volume": 0.5}
//
// Emit answers {"status": "ok"} once the request is handed upstream. Call
// answers with the upstream response object as received, minus its
// message-id. Bodies over 1 MiB are rejected on both endpoints and nothing
// is forwarded.
//
// Error Handling:
//
// Failures are reported in the body with HTTP status 200, so clients only need
// to branch on the "status" field:
//
//	{
//	  "status": "error",
//	  "error": "The upstream request timed out."
//	}
//
// Authentication:
//
// When an authentication key is configured, /emit, /call and /ws require an
// AuthKey header equal to it. /ws also accepts ?authkey= for browsers.
package api
