package engine

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []transport.Frame
}

func (r *recordingSink) Send(f transport.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingSink) Heartbeat() error { return nil }

func (r *recordingSink) messages() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, f := range r.frames {
		var m map[string]any
		if json.Unmarshal(f.Data, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

type fakeInspector struct {
	infos []session.Info
}

func (f *fakeInspector) Count() int               { return len(f.infos) }
func (f *fakeInspector) List() []session.Info     { return f.infos }
func (f *fakeInspector) Threshold() time.Duration { return 30 * time.Minute }

func newTestEngine() *Engine {
	return New(Options{Name: "mcp-ragdocs", Version: "1.0.0"})
}

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`

func pump(t *testing.T, s *transport.Stream) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Pump(ctx, time.Hour) }()
}

func TestConnectRoutesMessagesToServer(t *testing.T) {
	e := newTestEngine()
	sink := &recordingSink{}
	stream := transport.New("s-1", "/messages", sink, transport.Options{})

	require.NoError(t, e.Connect(context.Background(), stream))
	pump(t, stream)

	require.NoError(t, stream.Dispatch(context.Background(), []byte(initializeRequest)))
	require.NoError(t, stream.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, time.Second, 5*time.Millisecond)
	reply := sink.messages()[0]
	result, ok := reply["result"].(map[string]any)
	require.True(t, ok, "expected result in %v", reply)
	serverInfo := result["serverInfo"].(map[string]any)
	assert.Equal(t, "mcp-ragdocs", serverInfo["name"])
	assert.Equal(t, "1.0.0", serverInfo["version"])

	assert.Eventually(t, stream.Initialized, time.Second, 5*time.Millisecond)
}

func TestConnectRejectsDuplicateSession(t *testing.T) {
	e := newTestEngine()
	stream := transport.New("dup", "/messages", &recordingSink{}, transport.Options{})

	require.NoError(t, e.Connect(context.Background(), stream))
	err := e.Connect(context.Background(), stream)
	assert.ErrorIs(t, err, server.ErrSessionExists)
}

func TestStreamCloseUnregistersSession(t *testing.T) {
	e := newTestEngine()
	first := transport.New("reuse", "/messages", &recordingSink{}, transport.Options{})
	require.NoError(t, e.Connect(context.Background(), first))

	first.Close()

	second := transport.New("reuse", "/messages", &recordingSink{}, transport.Options{})
	assert.Eventually(t, func() bool {
		return e.Connect(context.Background(), second) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestClosedEngineRejectsConnect(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	err := e.Connect(context.Background(), transport.New("x", "/messages", &recordingSink{}, transport.Options{}))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClosedEngineFailsRegistryCreate(t *testing.T) {
	e := newTestEngine()
	reg := session.NewRegistry(e, session.Options{})
	defer reg.Shutdown()

	require.NoError(t, e.Close())
	_, err := reg.Create(context.Background(), session.KindSSE, "/messages", &recordingSink{})

	var attachErr *session.AttachmentError
	require.ErrorAs(t, err, &attachErr)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, reg.Count())
}

func TestSessionInfoToolDefaultsToCaller(t *testing.T) {
	e := newTestEngine()
	reg := session.NewRegistry(e, session.Options{})
	defer reg.Shutdown()
	e.SetInspector(reg)

	sink := &recordingSink{}
	sess, err := reg.Create(context.Background(), session.KindSSE, "/messages", sink)
	require.NoError(t, err)
	id := sess.ID
	pump(t, sess.Transport)

	call := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"session_info","arguments":{}}}`
	require.NoError(t, sess.Transport.Dispatch(context.Background(), []byte(call)))

	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, time.Second, 5*time.Millisecond)
	raw, err := json.Marshal(sink.messages()[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), id)
	assert.Contains(t, string(raw), `\"kind\":\"sse\"`)
}

// TestGatewayTools_MCPClient drives the engine's MCP server over stdio pipes
// with the modelcontextprotocol go-sdk client.
func TestGatewayTools_MCPClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e := newTestEngine()
	e.SetInspector(&fakeInspector{infos: []session.Info{
		{ID: "aaa", Kind: session.KindSSE, CreatedAt: time.Now(), LastActivity: time.Now()},
		{ID: "bbb", Kind: session.KindWebSocket, CreatedAt: time.Now(), LastActivity: time.Now()},
	}})
	stdioServer := server.NewStdioServer(e.Server())

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	go func() {
		_ = stdioServer.Listen(ctx, serverReader, serverWriter)
	}()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	clientSession, err := client.Connect(ctx, &sdkmcp.IOTransport{
		Reader: clientReader,
		Writer: clientWriter,
	}, nil)
	require.NoError(t, err, "failed to connect client to engine")
	defer clientSession.Close()

	listResult, err := clientSession.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range listResult.Tools {
		names[tool.Name] = true
	}
	assert.True(t, names[ToolGatewayStatus])
	assert.True(t, names[ToolSessionInfo])

	result, err := clientSession.CallTool(ctx, &sdkmcp.CallToolParams{Name: ToolGatewayStatus})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "content should be TextContent")

	var status GatewayStatus
	require.NoError(t, json.Unmarshal([]byte(text.Text), &status))
	assert.Equal(t, 2, status.ActiveSessions)
	assert.Equal(t, "30m0s", status.InactivityThreshold)

	result, err = clientSession.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      ToolSessionInfo,
		Arguments: map[string]any{"sessionId": "bbb"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	text = result.Content[0].(*sdkmcp.TextContent)
	assert.Contains(t, text.Text, `"kind":"websocket"`)

	result, err = clientSession.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      ToolSessionInfo,
		Arguments: map[string]any{"sessionId": "missing"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	cancel()
	clientWriter.Close()
	serverWriter.Close()
}
