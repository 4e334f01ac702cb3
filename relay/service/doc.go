// Package service holds the relay's request semantics, independent of HTTP.
//
// The RelayService interface is what transport layers (the REST API, the MCP
// bridge) call. Its implementation decodes request bodies, applies the
// emit/call payload policy and forwards to the upstream session:
//
//   - Emit: a body that is empty, "null", malformed or not an object is sent
//     as "no payload". Nothing is reported back.
//   - Call: an empty or "null" body is "no payload"; any other body must be a
//     JSON object, otherwise ErrMalformedPayload is returned and nothing is
//     sent upstream.
//
// Usage:
//
//	client := obsws.NewClient(host, port, password)
//	relay := service.NewRelayService(client)
//	resp, err := relay.Call(ctx, "GetVersion", nil)
package service
