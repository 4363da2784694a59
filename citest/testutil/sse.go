package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	ID   string
	Type string
	Data string
}

// JSON unmarshals the event data into v
func (e *SSEEvent) JSON(v any) error {
	return json.Unmarshal([]byte(e.Data), v)
}

// SSEClient reads a gateway stream for testing
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	eventsCh chan SSEEvent
	closed   chan struct{}
	cancel   context.CancelFunc
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
		eventsCh: make(chan SSEEvent, 100),
		closed:   make(chan struct{}),
	}
}

// Connect opens the stream at path
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	go c.readEvents(resp.Body)
	return nil
}

// readEvents reads SSE events until the stream ends
func (c *SSEClient) readEvents(body io.ReadCloser) {
	defer close(c.closed)
	defer body.Close()

	reader := bufio.NewReader(body)
	var evt SSEEvent

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if evt.Type != "" {
				select {
				case c.eventsCh <- evt:
				default:
				}
			}
			evt = SSEEvent{}
		case strings.HasPrefix(line, ":"):
			select {
			case c.eventsCh <- SSEEvent{Type: "heartbeat"}:
			default:
			}
		case strings.HasPrefix(line, "id:"):
			evt.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			evt.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			evt.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// WaitForEvent waits for a specific event type with timeout
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-c.eventsCh:
			if evt.Type == eventType {
				return &evt, nil
			}
		case <-c.closed:
			for {
				select {
				case evt := <-c.eventsCh:
					if evt.Type == eventType {
						return &evt, nil
					}
				default:
					return nil, fmt.Errorf("connection closed")
				}
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event: %s", eventType)
		}
	}
}

// WaitForClose waits until the server ends the stream
func (c *SSEClient) WaitForClose(timeout time.Duration) error {
	select {
	case <-c.closed:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("stream still open after %v", timeout)
	}
}

// Close closes the connection
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
