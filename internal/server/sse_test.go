package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/ragdocs-gateway/internal/engine"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

// mockResponseWriter counts flushes.
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	assert.Error(t, err)
}

func TestSSEWriter_Send(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.Send(transport.Frame{Event: transport.EventEndpoint, Data: []byte("/messages/abc")}))
	require.NoError(t, sse.Send(transport.Frame{ID: "01J0", Event: transport.EventMessage, Data: []byte(`{"ok":true}`)}))

	assert.Equal(t,
		"event: endpoint\ndata: /messages/abc\n\n"+
			"id: 01J0\nevent: message\ndata: {\"ok\":true}\n\n",
		w.Body.String())
	assert.Equal(t, 2, w.flushed)
}

func TestSSEWriter_Heartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	require.NoError(t, sse.Heartbeat())
	assert.Equal(t, ": heartbeat\n\n", w.Body.String())
	assert.Equal(t, 1, w.flushed)
}

func TestOpenSSE_AttachFailure(t *testing.T) {
	srv, reg := setupTestServer(t, &echoEngine{err: errors.New("engine down")})

	w := newMockResponseWriter()
	srv.openSSE(w, httptest.NewRequest("GET", "/sse", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeAttachFailed, decodeError(t, w.ResponseRecorder).Code)
	assert.Zero(t, reg.Count())
}

type sseEvent struct {
	id    string
	event string
	data  string
}

// readEvent reads the next event, skipping heartbeat comments.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if ev.event != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newLiveServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	eng := engine.New(engine.Options{Name: "mcp-ragdocs", Version: "1.0.0"})
	t.Cleanup(func() { _ = eng.Close() })

	srv, reg := setupTestServer(t, eng)
	eng.SetInspector(reg)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, reg
}

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`

func TestOpenSSE_Handshake(t *testing.T) {
	ts, reg := newLiveServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)

	hello := readEvent(t, r)
	require.Equal(t, "session", hello.event)
	var se types.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(hello.data), &se))
	require.NotEmpty(t, se.SessionID)
	assert.True(t, reg.Has(se.SessionID))

	// Opening the stream is not client activity.
	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, infos[0].CreatedAt, infos[0].LastActivity)

	endpoint := readEvent(t, r)
	require.Equal(t, "endpoint", endpoint.event)
	assert.Equal(t, "/messages/"+se.SessionID, endpoint.data)

	post, err := http.Post(ts.URL+endpoint.data, "application/json", strings.NewReader(initializeRequest))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	reply := readEvent(t, r)
	assert.Equal(t, "message", reply.event)
	assert.NotEmpty(t, reply.id)

	var msg struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(reply.data), &msg))
	assert.Equal(t, 1, msg.ID)
	assert.Equal(t, "mcp-ragdocs", msg.Result.ServerInfo.Name)

	// Disconnecting removes the session.
	cancel()
	require.Eventually(t, func() bool { return !reg.Has(se.SessionID) }, 2*time.Second, 10*time.Millisecond)
}

func TestOpenSSE_ShutdownEndsStream(t *testing.T) {
	ts, reg := newLiveServer(t)

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	readEvent(t, r)
	require.Equal(t, 1, reg.Count())

	reg.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after registry shutdown")
	}
	assert.Zero(t, reg.Count())
}
