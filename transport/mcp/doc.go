// Package mcp exposes the relay to Model Context Protocol agents.
//
// The Client registers a small set of tools on an mcp-go server and proxies
// each invocation to the relay's HTTP API, so agents get the same
// authentication and error semantics as any other HTTP caller.
//
// MCP Tools:
//   - call_request: Send an obs-websocket request and return its response
//   - emit_request: Send an obs-websocket request without waiting
//   - relay_status: Report the upstream session state
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: client.HTTPHandler() mounted at /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://127.0.0.1:4445", "secret1", 30*time.Second)
//	http.Handle("/mcp", client.HTTPHandler())
package mcp
