// Package streaming turns chunked Server-Sent Events bodies into lines and
// events. Chunk boundaries are independent of line and event boundaries:
// LineBuffer reassembles lines, Accumulator folds lines into events, and
// Decoder pulls both from an io.Reader one event at a time.
package streaming

import (
	"errors"
	"io"
)

// DecoderOption configures a Decoder.
type DecoderOption func(*decoderConfig)

type decoderConfig struct {
	readSize    int
	maxLineSize int
}

// WithReadSize sets the number of bytes requested per upstream read.
func WithReadSize(n int) DecoderOption {
	return func(c *decoderConfig) {
		c.readSize = n
	}
}

// WithMaxLineSize caps a single line. 0 disables the cap.
func WithMaxLineSize(n int) DecoderOption {
	return func(c *decoderConfig) {
		c.maxLineSize = n
	}
}

// Decoder reads SSE events from a body. Each call to Next either returns
// already buffered data or blocks on the next upstream read.
type Decoder struct {
	lines *LineReader
	acc   Accumulator
	err   error
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	cfg := decoderConfig{
		readSize:    DefaultReadSize,
		maxLineSize: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Decoder{
		lines: NewLineReader(r, cfg.readSize, cfg.maxLineSize),
	}
}

// Next returns the next complete event.
// It returns io.EOF after the last event, including a dangling event that was
// not followed by a blank line. Read failures are returned as-is and repeated
// on later calls.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}

	for {
		raw, err := d.lines.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
				if ev, ok := d.acc.Flush(); ok {
					return ev, nil
				}
				return Event{}, io.EOF
			}
			// Partial events are not flushed on abnormal termination.
			d.acc.Reset()
			d.err = err
			return Event{}, err
		}

		if ev, ok := d.acc.Feed(raw); ok {
			return ev, nil
		}
	}
}
