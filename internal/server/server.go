package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/telnet2/ragdocs-gateway/internal/event"
	"github.com/telnet2/ragdocs-gateway/internal/metrics"
	"github.com/telnet2/ragdocs-gateway/internal/session"
)

// MessagesPath is the base path clients post session messages to.
const MessagesPath = "/messages"

// Config holds server configuration.
type Config struct {
	Host              string
	Port              int
	CORSOrigins       []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	DispatchTimeout   time.Duration
	// WSOrigins lists origins accepted on /ws. Empty accepts any origin.
	WSOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              3031,
		CORSOrigins:       []string{"*"},
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // No write timeout for SSE
		HeartbeatInterval: SSEHeartbeatInterval,
		DispatchTimeout:   30 * time.Second,
	}
}

// Server is the HTTP gateway.
type Server struct {
	config   *Config
	router   *chi.Mux
	mu       sync.Mutex
	httpSrv  *http.Server
	stopped  bool
	registry *session.Registry
	bus      *event.Bus
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	started  time.Time
}

// New creates a new Server instance. bus and m may be nil.
func New(cfg *Config, registry *session.Registry, bus *event.Bus, m *metrics.Metrics) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = SSEHeartbeatInterval
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		registry: registry,
		bus:      bus,
		metrics:  m,
		started:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Session-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln and blocks until the server stops. After
// Shutdown it closes ln and returns immediately.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ln.Close()
	}
	s.httpSrv = srv
	s.mu.Unlock()

	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. Open streams must already have
// been released by draining the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.started)
}

func (s *Server) publish(e event.Event) {
	if s.bus == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.bus.Publish(e)
}
