package event

import "time"

// EventType represents the type of event.
type EventType string

const (
	// SessionCreated fires after a session is attached to the engine and registered.
	SessionCreated EventType = "session.created"
	// SessionRejected fires when the engine refuses a new transport.
	SessionRejected EventType = "session.rejected"
	// SessionClosed fires when a session is removed by its client going away.
	SessionClosed EventType = "session.closed"
	// SessionEvicted fires for each session removed by the idle sweep.
	SessionEvicted EventType = "session.evicted"
	// SessionsDrained fires once when the registry shuts down.
	SessionsDrained EventType = "sessions.drained"
	// MessageForwarded fires after an inbound message is dispatched to a session.
	MessageForwarded EventType = "message.forwarded"
)

// Event is a registry lifecycle event. Fields that do not apply to an event
// type are left zero.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionID,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	// Active is the number of registered sessions after the event.
	Active int `json:"active"`
	// Count is the number of sessions affected (drain, sweep).
	Count int `json:"count,omitempty"`
	// Idle is how long the session had been idle when it was evicted.
	Idle time.Duration `json:"idle,omitempty"`
	// Lifetime is the age of the session when it was removed.
	Lifetime time.Duration `json:"lifetime,omitempty"`
	Error    string        `json:"error,omitempty"`
	Time     time.Time     `json:"time"`
}
