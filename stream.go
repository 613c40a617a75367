package wxai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/wxai/internal/metrics"
	"github.com/blueberrycongee/wxai/internal/observability"
	"github.com/blueberrycongee/wxai/internal/streaming"
)

// ErrStreamAborted is returned by Recv once a stream has been aborted.
var ErrStreamAborted = errors.New("wxai: stream aborted")

// DecodeError reports a stream event whose data could not be decoded. It
// affects that event only: the next Recv continues with the following event.
type DecodeError struct {
	ID    int64
	HasID bool
	Event string
	Data  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.HasID {
		return fmt.Sprintf("decode stream event %d (%s): %v", e.ID, e.Event, e.Err)
	}
	return fmt.Sprintf("decode stream event (%s): %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StreamEvent is one decoded Server-Sent Event.
type StreamEvent[T any] struct {
	// ID is only meaningful when HasID is set. Events without a well-formed
	// upstream id are never given one.
	ID    int64
	HasID bool
	Event string
	Data  T
}

// Stream is a stream of events whose data is decoded into T.
//
// Example:
//
//	stream, err := client.GenerateTextStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    ev, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    var decodeErr *wxai.DecodeError
//	    if errors.As(err, &decodeErr) {
//	        continue
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(ev.Data.Text())
//	}
//
// Recv must be called from one goroutine at a time. Abort and Close may be
// called from any goroutine, including while Recv is blocked.
type Stream[T any] struct {
	core   *streamCore
	onData func(*T)
}

// Recv returns the next event. It returns io.EOF after the last event,
// ErrStreamAborted after Abort, and a *DecodeError for an event whose data
// is not valid JSON for T. Any other error is terminal and is returned again
// by later calls.
func (s *Stream[T]) Recv() (*StreamEvent[T], error) {
	ev, err := s.core.next()
	if err != nil {
		return nil, err
	}

	out := &StreamEvent[T]{ID: ev.ID, HasID: ev.HasID, Event: ev.Name}
	if err := json.Unmarshal([]byte(ev.Data), &out.Data); err != nil {
		return nil, s.core.decodeFailed(ev, err)
	}
	if s.onData != nil {
		s.onData(&out.Data)
	}
	return out, nil
}

// All iterates over the remaining events. Decode errors are yielded and
// iteration continues; io.EOF ends iteration silently; any other error is
// yielded once and ends iteration. Breaking out of the loop aborts the
// stream.
func (s *Stream[T]) All() iter.Seq2[*StreamEvent[T], error] {
	return func(yield func(*StreamEvent[T], error) bool) {
		for {
			ev, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil && !isDecodeError(err) {
				yield(nil, err)
				return
			}
			if !yield(ev, err) {
				s.Abort()
				return
			}
		}
	}
}

// Abort stops the stream and releases the connection. Events still being
// assembled are dropped. It is safe to call more than once and from any
// goroutine. Abort after the stream ended on its own does nothing.
func (s *Stream[T]) Abort() { s.core.abort() }

// Close aborts the stream if it is still running.
func (s *Stream[T]) Close() error {
	s.core.abort()
	return nil
}

// Aborted reports whether Abort cut the stream short.
func (s *Stream[T]) Aborted() bool { return s.core.aborted.Load() }

// OnAbort registers fn to run once when the stream is aborted.
func (s *Stream[T]) OnAbort(fn func()) { s.core.setAbortHook(fn) }

// RequestID returns the X-Request-ID sent with the request.
func (s *Stream[T]) RequestID() string { return s.core.requestID }

// TextStream is a stream of raw event data strings, with the id and event
// name discarded.
type TextStream struct {
	core *streamCore
}

// Recv returns the data of the next event, io.EOF after the last event and
// ErrStreamAborted after Abort.
func (s *TextStream) Recv() (string, error) {
	ev, err := s.core.next()
	if err != nil {
		return "", err
	}
	return ev.Data, nil
}

// All iterates over the remaining event data. Breaking out of the loop
// aborts the stream.
func (s *TextStream) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			data, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(data, nil) {
				s.Abort()
				return
			}
		}
	}
}

// Abort stops the stream and releases the connection.
func (s *TextStream) Abort() { s.core.abort() }

// Close aborts the stream if it is still running.
func (s *TextStream) Close() error {
	s.core.abort()
	return nil
}

// Aborted reports whether Abort cut the stream short.
func (s *TextStream) Aborted() bool { return s.core.aborted.Load() }

// OnAbort registers fn to run once when the stream is aborted.
func (s *TextStream) OnAbort(fn func()) { s.core.setAbortHook(fn) }

// RequestID returns the X-Request-ID sent with the request.
func (s *TextStream) RequestID() string { return s.core.requestID }

func isDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// streamCore owns one open response body and the decoder reading it.
type streamCore struct {
	ctx       context.Context
	dec       *streaming.Decoder
	body      io.Closer
	cancel    context.CancelFunc
	span      trace.Span
	labels    metrics.Labels
	metrics   *metrics.Collector
	logger    *slog.Logger
	requestID string
	start     time.Time

	// mu serializes reads. err is the sticky terminal error.
	mu  sync.Mutex
	err error

	events     atomic.Int64
	aborted    atomic.Bool
	ended      atomic.Bool
	abortOnce  sync.Once
	finishOnce sync.Once

	hookMu sync.Mutex
	hook   func()
}

// openStream sends a streaming call. Non-2xx responses are returned as
// errors and no stream is created.
func openStream(ctx context.Context, c *Client, cl *call) (*streamCore, error) {
	start := time.Now()
	ctx, requestID := observability.GetOrCreateRequestID(ctx)
	ctx, cancel := context.WithCancel(ctx)
	ctx, span := c.startSpan(ctx, cl)

	resp, err := c.do(ctx, cl)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		cancel()
		return nil, err
	}

	body, err := streaming.NewDecodingReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		_ = resp.Body.Close()
		observability.RecordError(span, err)
		span.End()
		cancel()
		return nil, fmt.Errorf("open %s stream: %w", cl.operation, err)
	}

	s := &streamCore{
		ctx:       ctx,
		dec:       streaming.NewDecoder(body, c.decoderOpts...),
		body:      resp.Body,
		cancel:    cancel,
		span:      span,
		labels:    cl.labels(),
		metrics:   c.metrics,
		logger:    c.logger,
		requestID: requestID,
		start:     start,
	}
	c.metrics.StreamStarted(s.labels)
	c.logger.DebugContext(ctx, "stream opened", "operation", cl.operation, "model", s.labels.Model)
	return s, nil
}

func (s *streamCore) next() (streaming.Event, error) {
	if s.aborted.Load() {
		return streaming.Event{}, ErrStreamAborted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return streaming.Event{}, s.err
	}

	ev, err := s.dec.Next()
	// A read failing because Abort closed the body is not a transport error.
	if s.aborted.Load() {
		s.err = ErrStreamAborted
		return streaming.Event{}, ErrStreamAborted
	}
	if err != nil {
		s.err = err
		if errors.Is(err, io.EOF) {
			s.finish(metrics.ReasonEOF, nil)
		} else {
			s.logger.WarnContext(s.ctx, "stream failed", "operation", s.labels.Operation, "error", err)
			s.finish(metrics.ReasonError, err)
		}
		return streaming.Event{}, err
	}

	var ttfe time.Duration
	if s.events.Add(1) == 1 {
		ttfe = time.Since(s.start)
	}
	s.metrics.StreamEvent(s.labels, ttfe)
	return ev, nil
}

func (s *streamCore) decodeFailed(ev streaming.Event, err error) error {
	s.metrics.StreamDecodeError(s.labels)
	s.logger.DebugContext(s.ctx, "stream event not decoded",
		"operation", s.labels.Operation,
		"event", ev.Name,
		"id", ev.RawID,
		"error", err,
	)
	return &DecodeError{ID: ev.ID, HasID: ev.HasID, Event: ev.Name, Data: ev.Data, Err: err}
}

func (s *streamCore) abort() {
	if s.ended.Load() {
		return
	}
	s.aborted.Store(true)
	s.abortOnce.Do(func() {
		s.finish(metrics.ReasonAborted, nil)
		s.hookMu.Lock()
		hook := s.hook
		s.hookMu.Unlock()
		if hook != nil {
			hook()
		}
	})
}

func (s *streamCore) setAbortHook(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = fn
}

// finish releases the connection and closes the span. Only the first call
// has any effect.
func (s *streamCore) finish(reason string, err error) {
	s.finishOnce.Do(func() {
		if reason != metrics.ReasonAborted {
			s.ended.Store(true)
		}
		s.cancel()
		_ = s.body.Close()

		events := s.events.Load()
		s.span.SetAttributes(
			attribute.Int64("wxai.stream.events", events),
			attribute.String("wxai.stream.end", reason),
		)
		observability.RecordError(s.span, err)
		s.span.End()

		s.metrics.StreamFinished(s.labels, reason)
		s.logger.DebugContext(s.ctx, "stream finished",
			"operation", s.labels.Operation,
			"reason", reason,
			"events", events,
			"duration", time.Since(s.start),
		)
	})
}

func newStream[T any](core *streamCore, onData func(*T)) *Stream[T] {
	return &Stream[T]{core: core, onData: onData}
}
