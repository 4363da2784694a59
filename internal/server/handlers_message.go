package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/telnet2/ragdocs-gateway/internal/event"
	"github.com/telnet2/ragdocs-gateway/internal/logging"
)

// maxMessageBytes caps a single inbound message body.
const maxMessageBytes = 4 << 20

// postMessage handles POST /messages with the session id in the
// X-Session-ID header or the sessionId query parameter.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		id = r.URL.Query().Get("sessionId")
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session id required in X-Session-ID header or sessionId query")
		return
	}
	s.resolveAndForward(w, r, id)
}

// postSessionMessage handles POST /messages/{sessionId}.
func (s *Server) postSessionMessage(w http.ResponseWriter, r *http.Request) {
	s.resolveAndForward(w, r, chi.URLParam(r, "sessionId"))
}

// resolveAndForward reads the request body and forwards it to session id.
// The engine's reply is streamed on the session, so success is 202.
func (s *Server) resolveAndForward(w http.ResponseWriter, r *http.Request, id string) {
	// Resolve first so an unknown session is 404 regardless of the body.
	if !s.registry.Has(id) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("session %s not found", id))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "read body: "+err.Error())
		return
	}

	if err := s.forward(r.Context(), id, body); err != nil {
		status, code := statusForError(err)
		if status >= http.StatusInternalServerError {
			logging.Session(id).Error().Err(err).Msg("Error handling message")
		}
		writeError(w, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}

// forward looks up session id, refreshing its activity, and dispatches body
// to its transport. Both HTTP and WebSocket message paths go through here.
func (s *Server) forward(ctx context.Context, id string, body []byte) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	if err := sess.Transport.Dispatch(ctx, body); err != nil {
		return err
	}

	s.publish(event.Event{Type: event.MessageForwarded, SessionID: id, Kind: string(sess.Kind)})
	return nil
}
