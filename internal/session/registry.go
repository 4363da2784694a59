package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telnet2/ragdocs-gateway/internal/event"
	"github.com/telnet2/ragdocs-gateway/internal/logging"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

// Defaults for Options.
const (
	DefaultInactivityThreshold = 30 * time.Minute
	DefaultCleanupInterval     = 5 * time.Minute
)

// Engine is the backend a new transport is attached to.
type Engine interface {
	Connect(ctx context.Context, stream *transport.Stream) error
}

// Options configures a Registry.
type Options struct {
	// InactivityThreshold is the idle time after which a session is evicted.
	InactivityThreshold time.Duration
	// CleanupInterval is the sweep period.
	CleanupInterval time.Duration
	// Transport configures streams built by Create.
	Transport transport.Options
	// Bus receives lifecycle events. Optional.
	Bus *event.Bus
	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Registry tracks live sessions by id and evicts idle ones.
type Registry struct {
	engine Engine
	opts   Options
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	cancel       context.CancelFunc
	sweepDone    chan struct{}
	shutdownOnce sync.Once
}

// NewRegistry creates a registry bound to engine and starts its sweep.
func NewRegistry(engine Engine, opts Options) *Registry {
	if opts.InactivityThreshold <= 0 {
		opts.InactivityThreshold = DefaultInactivityThreshold
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		engine:    engine,
		opts:      opts,
		now:       now,
		sessions:  make(map[string]*Session),
		cancel:    cancel,
		sweepDone: make(chan struct{}),
	}

	go r.sweepLoop(ctx)

	logging.Info().
		Dur("threshold", opts.InactivityThreshold).
		Dur("interval", opts.CleanupInterval).
		Msg("Session registry started")
	return r
}

// Create allocates a session id, builds a stream for it and attaches the
// stream to the engine. The session is registered only after the engine
// accepted it. The returned session has not been touched, so its
// LastActivity equals CreatedAt.
func (r *Registry) Create(ctx context.Context, kind Kind, endpoint string, sink transport.Sink) (*Session, error) {
	if r.isClosed() {
		return nil, &AttachmentError{Err: ErrRegistryClosed}
	}

	id := uuid.NewString()
	stream := transport.New(id, endpoint, sink, r.opts.Transport)

	if err := r.engine.Connect(ctx, stream); err != nil {
		stream.Close()
		logging.Session(id).Error().Err(err).Msg("Failed to attach session")
		r.publish(event.Event{Type: event.SessionRejected, SessionID: id, Kind: string(kind), Error: err.Error()})
		return nil, &AttachmentError{SessionID: id, Err: err}
	}

	sess := newSession(id, kind, stream, r.now())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		stream.Close()
		return nil, &AttachmentError{SessionID: id, Err: ErrRegistryClosed}
	}
	r.sessions[id] = sess
	active := len(r.sessions)
	r.mu.Unlock()

	logging.Session(id).Info().Str("kind", string(kind)).Int("active", active).Msg("New session created")
	r.publish(event.Event{Type: event.SessionCreated, SessionID: id, Kind: string(kind), Active: active})
	return sess, nil
}

// Get returns the session and records activity on it.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess.touch(r.now())
	return sess, nil
}

// Has reports whether id is registered without recording activity.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Remove unregisters id and closes its transport. It reports whether this
// call removed the session; removing an unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	sess, active, ok := r.detach(id, nil)
	if !ok {
		return false
	}
	sess.Transport.Close()

	now := r.now()
	logging.Session(id).Info().Int("active", active).Msg("Session removed")
	r.publish(event.Event{
		Type:      event.SessionClosed,
		SessionID: id,
		Kind:      string(sess.Kind),
		Active:    active,
		Lifetime:  now.Sub(sess.CreatedAt),
	})
	return true
}

// detach deletes id from the map under the write lock. When keep is non-nil
// and returns true for the session, it is left in place. Exactly one caller
// wins the removal of a given session.
func (r *Registry) detach(id string, keep func(*Session) bool) (*Session, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || (keep != nil && keep(sess)) {
		return nil, len(r.sessions), false
	}
	delete(r.sessions, id)
	return sess, len(r.sessions), true
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of all sessions, oldest first. It does not record
// activity.
func (r *Registry) List() []Info {
	now := r.now()

	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.info(now))
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Sweep evicts every session idle for strictly longer than the inactivity
// threshold and returns how many were evicted.
func (r *Registry) Sweep() int {
	now := r.now()
	threshold := r.opts.InactivityThreshold
	stale := func(s *Session) bool { return s.Idle(now) > threshold }

	r.mu.RLock()
	var candidates []string
	for id, sess := range r.sessions {
		if stale(sess) {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		// A Get may have refreshed the session since the scan.
		sess, active, ok := r.detach(id, func(s *Session) bool { return !stale(s) })
		if !ok {
			continue
		}
		idle := sess.Idle(now)
		sess.Transport.Close()
		evicted++

		logging.Session(id).Info().Dur("idle", idle).Msg("Removing inactive session")
		r.publish(event.Event{
			Type:      event.SessionEvicted,
			SessionID: id,
			Kind:      string(sess.Kind),
			Active:    active,
			Idle:      idle,
			Lifetime:  now.Sub(sess.CreatedAt),
		})
	}

	logging.Debug().Int("evicted", evicted).Int("active", r.Count()).Msg("Session sweep finished")
	return evicted
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown stops the sweep, unregisters every session and closes their
// transports without waiting for pending frames. Later calls are no-ops and
// later Creates fail.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.cancel()
		<-r.sweepDone

		r.mu.Lock()
		r.closed = true
		drained := r.sessions
		r.sessions = make(map[string]*Session)
		r.mu.Unlock()

		for _, sess := range drained {
			sess.Transport.Close()
		}

		logging.Info().Int("drained", len(drained)).Msg("Session registry shut down")
		r.publish(event.Event{Type: event.SessionsDrained, Count: len(drained)})
	})
}

// Threshold returns the configured inactivity threshold.
func (r *Registry) Threshold() time.Duration {
	return r.opts.InactivityThreshold
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) publish(e event.Event) {
	if r.opts.Bus == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.opts.Bus.Publish(e)
}
