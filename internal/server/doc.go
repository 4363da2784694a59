// Package server provides the HTTP gateway in front of the session registry.
//
// The gateway owns no session state. Every stream it opens is registered with
// a session.Registry, and every message it receives is resolved against that
// registry before being handed to the session's transport.
//
// # Endpoints
//
//   - GET /sse: open a Server-Sent Events stream. The first event is
//     "session" with {"sessionId": ...}, followed by "endpoint" with the
//     path to post messages to. Engine replies arrive as "message" events.
//   - GET /ws: open a WebSocket stream. The first frame is
//     {"type":"session","sessionId":...}; inbound text frames are forwarded
//     to the engine and replies are written back as text frames.
//   - POST /messages/{sessionId}, or POST /messages with the id in the
//     X-Session-ID header or sessionId query: forward one JSON-RPC message.
//     Success is 202 Accepted; the reply is delivered on the stream.
//   - GET /status, /health, /sessions, /metrics: monitoring.
//
// # Errors
//
// Failures are JSON bodies of the form {"error":{"code":..., "message":...}}.
// Unknown sessions are 404, malformed messages 400, closed or saturated
// transports 503, and engine failures 500.
//
// # Lifecycle
//
// Streams end when the client disconnects or the registry removes the
// session. Callers stop the gateway by shutting down the registry first,
// which releases open streams, and then calling Shutdown.
package server
