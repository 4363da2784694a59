package transport

// Event names written to a sink.
const (
	EventSession  = "session"
	EventEndpoint = "endpoint"
	EventMessage  = "message"
)

// Frame is one outbound unit on a stream.
type Frame struct {
	// ID is a ULID for message frames and empty for handshake frames.
	ID    string
	Event string
	Data  []byte
}

// Sink writes frames to the client side of a stream. A sink is only ever
// used from the goroutine running Pump, so implementations need no locking.
type Sink interface {
	Send(f Frame) error
	Heartbeat() error
}
