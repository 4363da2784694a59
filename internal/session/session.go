package session

import (
	"sync"
	"time"

	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

// Kind records which stream-open style created a session.
type Kind string

const (
	KindSSE       Kind = "sse"
	KindWebSocket Kind = "websocket"
)

// Session is one live client connection bound to the engine.
type Session struct {
	ID        string
	Kind      Kind
	Transport *transport.Stream
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

func newSession(id string, kind Kind, stream *transport.Stream, now time.Time) *Session {
	return &Session{
		ID:           id,
		Kind:         kind,
		Transport:    stream,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// LastActivity returns the time of the most recent successful lookup.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// touch moves LastActivity forward to now. It never moves backwards, so
// LastActivity stays at or after CreatedAt.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// Idle returns how long the session has gone without activity as of now.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID           string        `json:"id"`
	Kind         Kind          `json:"kind"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	Idle         time.Duration `json:"idle"`
	Pending      int           `json:"pending"`
}

func (s *Session) info(now time.Time) Info {
	last := s.LastActivity()
	return Info{
		ID:           s.ID,
		Kind:         s.Kind,
		CreatedAt:    s.CreatedAt,
		LastActivity: last,
		Idle:         now.Sub(last),
		Pending:      s.Transport.Pending(),
	}
}
