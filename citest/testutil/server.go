package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/telnet2/ragdocs-gateway/internal/config"
	"github.com/telnet2/ragdocs-gateway/internal/engine"
	"github.com/telnet2/ragdocs-gateway/internal/event"
	"github.com/telnet2/ragdocs-gateway/internal/metrics"
	"github.com/telnet2/ragdocs-gateway/internal/server"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

// TestServer wraps a fully wired gateway for testing
type TestServer struct {
	Server   *server.Server
	Registry *session.Registry
	Engine   *engine.Engine
	Bus      *event.Bus
	Metrics  *metrics.Metrics
	Config   *config.Config
	BaseURL  string
	port     int
	done     chan error
}

// TestServerOption configures TestServer
type TestServerOption func(*config.Config)

// WithInactivity sets the eviction threshold and sweep interval
func WithInactivity(threshold, interval time.Duration) TestServerOption {
	return func(c *config.Config) {
		c.Session.InactivityThreshold = config.Duration(threshold)
		c.Session.CleanupInterval = config.Duration(interval)
	}
}

// WithHeartbeat sets the stream heartbeat interval
func WithHeartbeat(d time.Duration) TestServerOption {
	return func(c *config.Config) {
		c.Server.HeartbeatInterval = config.Duration(d)
	}
}

// StartTestServer creates and starts a gateway on a free local port
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	for _, opt := range opts {
		opt(cfg)
	}

	port, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}
	cfg.Server.Port = port

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := event.NewBus()
	m := metrics.New()
	m.Attach(bus)

	eng := engine.New(engine.Options{Name: cfg.Engine.Name, Version: cfg.Engine.Version})
	reg := session.NewRegistry(eng, session.Options{
		InactivityThreshold: cfg.Session.InactivityThreshold.Std(),
		CleanupInterval:     cfg.Session.CleanupInterval.Std(),
		Transport:           transport.Options{OutboxSize: cfg.Session.OutboxSize},
		Bus:                 bus,
	})
	eng.SetInspector(reg)

	srv := server.New(&server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		CORSOrigins:       cfg.Server.CORSOrigins,
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
		DispatchTimeout:   cfg.Session.DispatchTimeout.Std(),
	}, reg, bus, m)

	ts := &TestServer{
		Server:   srv,
		Registry: reg,
		Engine:   eng,
		Bus:      bus,
		Metrics:  m,
		Config:   cfg,
		BaseURL:  fmt.Sprintf("http://127.0.0.1:%d", port),
		port:     port,
		done:     make(chan error, 1),
	}

	go func() {
		ts.done <- srv.Start()
	}()

	if err := waitForServer(ts.BaseURL, 10*time.Second); err != nil {
		ts.Stop()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}
	return ts, nil
}

// Stop drains sessions and shuts the gateway down
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts.Registry.Shutdown()
	_ = ts.Engine.Close()
	err := ts.Server.Shutdown(ctx)
	_ = ts.Bus.Close()
	return err
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// WebSocketURL returns the ws:// address of the /ws endpoint
func (ts *TestServer) WebSocketURL() string {
	return fmt.Sprintf("ws://127.0.0.1:%d/ws", ts.port)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
