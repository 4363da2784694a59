package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

// eventError is the frame event used for failed inbound WebSocket messages.
const eventError = "error"

const wsWriteWait = 10 * time.Second

// wsSink writes frames to a WebSocket connection. Engine messages and error
// frames go out as text; the session handshake is wrapped in a types.WSFrame.
type wsSink struct {
	conn *websocket.Conn
}

var _ transport.Sink = (*wsSink)(nil)

func (s *wsSink) Send(f transport.Frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	switch f.Event {
	case transport.EventSession:
		var hello types.SessionEvent
		if err := json.Unmarshal(f.Data, &hello); err != nil {
			return err
		}
		return s.conn.WriteJSON(types.WSFrame{Type: transport.EventSession, SessionID: hello.SessionID})
	case transport.EventEndpoint:
		// WebSocket clients reply on the same connection.
		return nil
	default:
		return s.conn.WriteMessage(websocket.TextMessage, f.Data)
	}
}

func (s *wsSink) Heartbeat() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// checkOrigin accepts any origin unless WSOrigins is configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.WSOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.WSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// openWebSocket handles GET /ws. Inbound text frames are forwarded to the
// engine through the same path as POST /messages; replies and errors are
// queued on the session and written by the pump, which owns all writes.
func (s *Server) openWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	sess, err := s.registry.Create(r.Context(), session.KindWebSocket, MessagesPath, sink)
	if err != nil {
		logging.Error().Err(err).Msg("Error in WebSocket connection")
		_, code := statusForError(err)
		_ = conn.WriteJSON(types.WSFrame{Type: eventError, Error: &types.FrameError{Code: code, Message: err.Error()}})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "attach failed"),
			time.Now().Add(wsWriteWait))
		return
	}
	id, stream := sess.ID, sess.Transport
	defer s.registry.Remove(id)

	hello, _ := json.Marshal(types.SessionEvent{SessionID: id})
	if err := stream.Send(transport.Frame{Event: transport.EventSession, Data: hello}); err != nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		// A client that stops reading is detected by the pump's failed writes;
		// a client that goes away is detected here.
		defer stream.Close()
		s.readWebSocket(r, conn, id, stream)
	}()

	err = stream.Pump(r.Context(), s.config.HeartbeatInterval)
	logging.Session(id).Debug().Err(err).Msg("WebSocket stream ended")

	// Unblock the reader before returning.
	_ = conn.Close()
	<-readDone
}

// readWebSocket forwards inbound frames until the connection fails.
func (s *Server) readWebSocket(r *http.Request, conn *websocket.Conn, id string, stream *transport.Stream) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Session(id).Debug().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if err := s.forward(r.Context(), id, data); err != nil {
			status, code := statusForError(err)
			if status >= http.StatusInternalServerError {
				logging.Session(id).Error().Err(err).Msg("Error handling message")
			}
			frame, _ := json.Marshal(types.WSFrame{Type: eventError, SessionID: id, Error: &types.FrameError{Code: code, Message: err.Error()}})
			if qerr := stream.Enqueue(transport.Frame{Event: eventError, Data: frame}); qerr != nil {
				return
			}
			if code == ErrCodeNotFound {
				return
			}
		}
	}
}
