// Package transport implements the per-session streaming transport that sits
// between one client connection and the MCP engine.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
)

// DefaultOutboxSize bounds the number of undelivered frames per stream.
const DefaultOutboxSize = 256

// notificationBuffer matches the buffer mcp-go uses for its own sessions.
const notificationBuffer = 100

// Handler processes one inbound message and returns the reply to stream back,
// or nil when the message expects none.
type Handler func(ctx context.Context, msg json.RawMessage) (any, error)

// Options configures a Stream.
type Options struct {
	OutboxSize int
}

// Stream is the transport owned by one session. Inbound messages enter via
// Dispatch; replies and engine notifications leave via Pump into the Sink.
type Stream struct {
	id       string
	endpoint string
	sink     Sink

	mu       sync.Mutex
	outbox   *queue.Queue
	maxSize  int
	reserved bool // a reply slot held by the in-flight Dispatch
	handler  Handler

	signal        chan struct{}
	notifications chan mcp.JSONRPCNotification
	inflight      chan struct{}
	done          chan struct{}
	closeOnce     sync.Once

	initialized atomic.Bool
}

var _ server.ClientSession = (*Stream)(nil)

// New creates a stream for session id. endpoint is the base path clients post
// messages to; the session id is appended to it by Endpoint.
func New(id, endpoint string, sink Sink, opts Options) *Stream {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	return &Stream{
		id:            id,
		endpoint:      endpoint,
		sink:          sink,
		outbox:        queue.New(),
		maxSize:       opts.OutboxSize,
		signal:        make(chan struct{}, 1),
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		inflight:      make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// SessionID implements server.ClientSession.
func (s *Stream) SessionID() string { return s.id }

// Initialize implements server.ClientSession.
func (s *Stream) Initialize() { s.initialized.Store(true) }

// Initialized implements server.ClientSession.
func (s *Stream) Initialized() bool { return s.initialized.Load() }

// NotificationChannel implements server.ClientSession.
func (s *Stream) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// Endpoint returns the path a client posts messages to for this stream.
func (s *Stream) Endpoint() string {
	return s.endpoint + "/" + s.id
}

// Bind sets the handler inbound messages are dispatched to.
func (s *Stream) Bind(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Done is closed when the stream is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close releases the stream. Undelivered frames are dropped. Only the first
// call has any effect.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		dropped := s.outbox.Length()
		s.outbox = queue.New()
		s.mu.Unlock()
		if dropped > 0 {
			logging.Session(s.id).Debug().Int("dropped", dropped).Msg("stream closed with pending frames")
		}
	})
}

// Dispatch hands msg to the bound handler and queues its reply. Only one
// message per stream is processed at a time; a caller whose ctx ends while
// waiting its turn gets ErrUnavailable.
//
// ErrUnavailable is only returned before the handler runs. A reply slot is
// reserved up front, so a full outbox rejects the message without handling
// it. Failures after the handler ran are reported as *HandlerError.
func (s *Stream) Dispatch(ctx context.Context, msg []byte) error {
	if s.Closed() {
		return fmt.Errorf("stream %s closed: %w", s.id, ErrUnavailable)
	}
	if !json.Valid(msg) {
		return ErrInvalidMessage
	}

	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("stream %s busy: %w", s.id, ErrUnavailable)
	case <-s.done:
		return fmt.Errorf("stream %s closed: %w", s.id, ErrUnavailable)
	}
	defer func() { <-s.inflight }()

	h, err := s.reserve()
	if err != nil {
		return err
	}
	defer s.unreserve()

	reply, err := s.invoke(ctx, h, msg)
	if err != nil {
		return &HandlerError{Err: err}
	}
	if reply == nil {
		return nil
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return &HandlerError{Err: fmt.Errorf("encode reply: %w", err)}
	}
	if err := s.commit(Frame{ID: ulid.Make().String(), Event: EventMessage, Data: data}); err != nil {
		return &HandlerError{Err: err}
	}
	return nil
}

// reserve claims the reply slot for the in-flight message and returns the
// bound handler. The caller must hold the single-flight slot.
func (s *Stream) reserve() (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.Closed():
		return nil, fmt.Errorf("stream %s closed: %w", s.id, ErrUnavailable)
	case s.handler == nil:
		return nil, fmt.Errorf("stream %s not attached: %w", s.id, ErrUnavailable)
	case s.free() <= 0:
		return nil, fmt.Errorf("stream %s outbox full: %w", s.id, ErrUnavailable)
	}
	s.reserved = true
	return s.handler, nil
}

func (s *Stream) unreserve() {
	s.mu.Lock()
	s.reserved = false
	s.mu.Unlock()
}

// commit queues the reply into the slot taken by reserve.
func (s *Stream) commit(f Frame) error {
	s.mu.Lock()
	s.reserved = false
	if s.Closed() {
		s.mu.Unlock()
		return fmt.Errorf("stream %s closed before reply was queued", s.id)
	}
	s.outbox.Add(f)
	s.mu.Unlock()

	s.wake()
	return nil
}

func (s *Stream) invoke(ctx context.Context, h Handler, msg []byte) (reply any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, json.RawMessage(msg))
}

// Enqueue queues f for delivery by Pump. It fails with ErrUnavailable when
// the stream is closed or its outbox is full.
func (s *Stream) Enqueue(f Frame) error {
	s.mu.Lock()
	if s.Closed() {
		s.mu.Unlock()
		return fmt.Errorf("stream %s closed: %w", s.id, ErrUnavailable)
	}
	if s.free() <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("stream %s outbox full: %w", s.id, ErrUnavailable)
	}
	s.outbox.Add(f)
	s.mu.Unlock()

	s.wake()
	return nil
}

// free returns the outbox capacity not queued or reserved. Callers hold s.mu.
func (s *Stream) free() int {
	n := s.maxSize - s.outbox.Length()
	if s.reserved {
		n--
	}
	return n
}

func (s *Stream) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued, undelivered frames.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Length()
}

// Send writes f straight to the sink. It must only be called from the
// goroutine that runs (or will run) Pump.
func (s *Stream) Send(f Frame) error {
	return s.sink.Send(f)
}

// Pump delivers queued replies and engine notifications to the sink and
// writes a heartbeat every interval. It returns nil when the stream is
// closed, ctx.Err() when ctx ends, or the first sink error.
//
// Notifications the engine emitted while handling a message reach the sink
// before that message's reply.
func (s *Stream) Pump(ctx context.Context, heartbeat time.Duration) error {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		if err := s.flush(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.signal:
		case n := <-s.notifications:
			if err := s.sendNotification(n); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.sink.Heartbeat(); err != nil {
				return err
			}
		}
	}
}

// flush drains pending notifications ahead of every queued frame, then
// returns once both are empty.
func (s *Stream) flush() error {
	for {
		if err := s.drainNotifications(); err != nil {
			return err
		}

		s.mu.Lock()
		if s.outbox.Length() == 0 || s.Closed() {
			s.mu.Unlock()
			return nil
		}
		f := s.outbox.Remove().(Frame)
		s.mu.Unlock()

		if err := s.sink.Send(f); err != nil {
			return err
		}
	}
}

func (s *Stream) drainNotifications() error {
	for {
		select {
		case n := <-s.notifications:
			if err := s.sendNotification(n); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Stream) sendNotification(n mcp.JSONRPCNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		logging.Session(s.id).Warn().Err(err).Msg("dropping notification")
		return nil
	}
	return s.sink.Send(Frame{ID: ulid.Make().String(), Event: EventMessage, Data: data})
}
