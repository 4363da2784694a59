package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE and serves as the transport
// sink of SSE sessions.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

var _ transport.Sink = (*sseWriter)(nil)

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	// Use ResponseController for more reliable flushing (Go 1.20+)
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// Send writes one SSE event. Message frames carry their ULID as the event id.
func (s *sseWriter) Send(f transport.Frame) error {
	if f.ID != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", f.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", f.Event, f.Data); err != nil {
		return err
	}
	s.flush()
	return nil
}

// Heartbeat writes an SSE heartbeat comment.
func (s *sseWriter) Heartbeat() error {
	if _, err := fmt.Fprintf(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	// Fallback to traditional flusher
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
}

// openSSE handles GET /sse. It creates a session bound to this response,
// announces the session id and message endpoint, then streams engine replies
// until the client goes away or the session is removed.
func (s *Server) openSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	sess, err := s.registry.Create(r.Context(), session.KindSSE, MessagesPath, sse)
	if err != nil {
		logging.Error().Err(err).Msg("Error in SSE connection")
		writeErrorFrom(w, err)
		return
	}
	id, stream := sess.ID, sess.Transport
	defer s.registry.Remove(id)

	// The stream outlives the server's read timeout.
	_ = sse.rc.SetReadDeadline(time.Time{})

	// Explicitly write status and flush headers immediately
	w.WriteHeader(http.StatusOK)
	sse.flush()

	hello, _ := json.Marshal(types.SessionEvent{SessionID: id})
	if err := stream.Send(transport.Frame{Event: transport.EventSession, Data: hello}); err != nil {
		return
	}
	if err := stream.Send(transport.Frame{Event: transport.EventEndpoint, Data: []byte(stream.Endpoint())}); err != nil {
		return
	}

	err = stream.Pump(r.Context(), s.config.HeartbeatInterval)
	logging.Session(id).Debug().Err(err).Msg("SSE stream ended")
}
