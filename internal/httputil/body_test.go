package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimitedBody_AllowsWithinLimit(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadLimitedBody_RejectsOversize(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("helloworld"), 5)
	if !errors.Is(err, ErrResponseBodyTooLarge) {
		t.Fatalf("expected ErrResponseBodyTooLarge, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadErrorBody_TruncatesWithoutError(t *testing.T) {
	big := strings.Repeat("x", int(MaxErrorBodyBytes)+10)
	body := ReadErrorBody(strings.NewReader(big))
	if int64(len(body)) != MaxErrorBodyBytes {
		t.Fatalf("expected %d bytes, got %d", MaxErrorBodyBytes, len(body))
	}
}

type closeRecorder struct {
	*strings.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &closeRecorder{Reader: strings.NewReader("leftover")}
	if err := DrainAndClose(rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rc.closed {
		t.Fatal("body was not closed")
	}
	if rc.Len() != 0 {
		t.Fatalf("expected body drained, %d bytes left", rc.Len())
	}
	if err := DrainAndClose(nil); err != nil {
		t.Fatalf("nil body: %v", err)
	}
}
