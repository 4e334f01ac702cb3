// Package websocket fans out obs-websocket events to browser subscribers.
//
// The package implements:
//   - Subscriber connections upgraded from GET /ws
//   - Optional per-subscriber filtering by event type
//   - Non-blocking publishing from the upstream receive loop
//   - Connection lifecycle management and shutdown
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each subscriber is served by a read goroutine and a
// write goroutine; registration, removal and delivery all happen on the hub's
// Run goroutine.
//
// Message Protocol:
//
// Every upstream event is forwarded verbatim as one text frame, exactly as
// obs-websocket sent it:
//
//	{"update-type": "SwitchScenes", "scene-name": "Live", "sources": [...]}
//
// Subscribers may pass ?events=SwitchScenes,StreamStarted to receive only
// those update types. Anything a subscriber sends is ignored.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	client := obsws.NewClient(host, port, password, obsws.WithEventHandler(hub.Publish))
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, websocket.ParseEventFilter(r.URL.Query().Get("events")))
//	})
//
// Slow subscribers whose send buffer fills up are disconnected rather than
// allowed to stall delivery to everyone else.
package websocket
