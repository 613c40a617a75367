package wxai

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient starts server with handler and returns a client pointed at
// it. Retries are off unless opts turn them on.
func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []Option{
		WithBaseURL(server.URL),
		WithBearerToken("test-token"),
		WithProjectID("proj-1"),
		WithRetry(0, time.Millisecond),
		WithLogger(discardLogger()),
	}
	client, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// writeSSE writes each frame as its own flushed chunk.
func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, f := range frames {
		_, _ = io.WriteString(w, f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func textGenRequest() *TextGenRequest {
	return &TextGenRequest{
		ModelID: "ibm/granite-13b-instruct-v2",
		Input:   "Say hello",
	}
}

func chatRequest() *ChatRequest {
	return &ChatRequest{
		ModelID:  "ibm/granite-3-8b-instruct",
		Messages: []ChatMessage{TextMessage(RoleUser, "Hello")},
	}
}
