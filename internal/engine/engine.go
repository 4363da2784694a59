// Package engine hosts the MCP protocol engine sessions are attached to.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("engine closed")

// Options configures the engine.
type Options struct {
	Name         string
	Version      string
	Instructions string
}

// Inspector exposes gateway state to the introspection tools.
type Inspector interface {
	Count() int
	List() []session.Info
	Threshold() time.Duration
}

// Engine wraps an mcp-go MCPServer and binds session streams to it.
type Engine struct {
	srv     *server.MCPServer
	started time.Time

	mu        sync.RWMutex
	closed    bool
	inspector Inspector
}

var _ session.Engine = (*Engine)(nil)

// New creates the engine and registers the gateway tools.
func New(opts Options) *Engine {
	e := &Engine{started: time.Now()}

	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, s server.ClientSession) {
		logging.Session(s.SessionID()).Debug().Msg("engine session registered")
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, s server.ClientSession) {
		logging.Session(s.SessionID()).Debug().Msg("engine session unregistered")
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		ev := logging.Warn().Err(err).Str("method", string(method)).Interface("requestID", id)
		if s := server.ClientSessionFromContext(ctx); s != nil {
			ev = ev.Str(logging.SessionField, s.SessionID())
		}
		ev.Msg("engine request failed")
	})

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithLogging(),
	}
	if opts.Instructions != "" {
		serverOpts = append(serverOpts, server.WithInstructions(opts.Instructions))
	}

	e.srv = server.NewMCPServer(opts.Name, opts.Version, serverOpts...)
	registerTools(e)
	return e
}

// SetInspector wires the source of gateway state used by the tools. The
// registry is built after the engine, so this is set once it exists.
func (e *Engine) SetInspector(i Inspector) {
	e.mu.Lock()
	e.inspector = i
	e.mu.Unlock()
}

func (e *Engine) getInspector() Inspector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.inspector
}

// Connect registers stream as an MCP client session and routes its inbound
// messages to the server. The session is unregistered when the stream closes.
func (e *Engine) Connect(ctx context.Context, stream *transport.Stream) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := e.srv.RegisterSession(ctx, stream); err != nil {
		return fmt.Errorf("register session: %w", err)
	}

	stream.Bind(func(ctx context.Context, msg json.RawMessage) (any, error) {
		reply := e.srv.HandleMessage(e.srv.WithContext(ctx, stream), msg)
		if reply == nil {
			return nil, nil
		}
		return reply, nil
	})

	go func() {
		<-stream.Done()
		e.srv.UnregisterSession(context.Background(), stream.SessionID())
	}()
	return nil
}

// Close stops accepting new sessions. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		logging.Info().Msg("MCP engine closed")
	}
	return nil
}

// Server returns the underlying MCP server.
func (e *Engine) Server() *server.MCPServer {
	return e.srv
}

// Uptime returns how long the engine has been running.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.started)
}
