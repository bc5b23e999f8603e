// Package api implements the HTTP REST API and WebSocket server for Lamp
// Fleet Core.
//
// This package provides:
//   - REST endpoints for lamp config, commands, status and history
//   - WebSocket hub relaying lamp.config, lamp.command and lamp.status events
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Content Types
//
// Config, command and status endpoints speak the lamp wire format. A request
// body sent as application/cbor is decoded with the wire codec; anything
// else is read as JSON. Responses are CBOR when the Accept header asks for
// application/cbor and JSON otherwise.
//
// # Security
//
// Tokens are issued by the account service and verified with the shared
// secret. Users may operate lamps they own or that are unowned; admins may
// operate any lamp. WebSocket connections use single-use tickets so the
// bearer token never appears in a URL.
//
// # Graceful Degradation
//
// The server operates without MQTT. State changes are stored and the
// publish failure is logged; the lamp picks up its retained config when the
// broker returns.
package api
