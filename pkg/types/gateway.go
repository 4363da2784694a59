// Package types holds the JSON shapes exchanged with gateway clients.
package types

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status         string      `json:"status"`
	ActiveSessions int         `json:"activeSessions"`
	Uptime         float64     `json:"uptime"` // seconds
	Memory         MemoryUsage `json:"memory"`
}

// MemoryUsage reports process memory in bytes.
type MemoryUsage struct {
	RSS       uint64 `json:"rss"`
	HeapTotal uint64 `json:"heapTotal"`
	HeapUsed  uint64 `json:"heapUsed"`
	External  uint64 `json:"external"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SessionInfo describes one live session.
type SessionInfo struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	CreatedAt    int64   `json:"createdAt"`    // unix millis
	LastActivity int64   `json:"lastActivity"` // unix millis
	IdleSeconds  float64 `json:"idleSeconds"`
	Pending      int     `json:"pending"`
}

// SessionList is returned by GET /sessions.
type SessionList struct {
	Count    int           `json:"count"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionEvent is the payload of the "session" stream event.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
}

// WSFrame is a control frame on the WebSocket stream. Engine messages are
// sent as raw JSON-RPC text frames and never wrapped.
type WSFrame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Error     *FrameError `json:"error,omitempty"`
}

// FrameError reports a failed inbound WebSocket message.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
