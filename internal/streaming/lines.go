package streaming

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultReadSize is the size of each read from the upstream body.
	DefaultReadSize = 4096

	// DefaultMaxLineSize caps a single buffered line (1MiB).
	DefaultMaxLineSize = 1 << 20
)

// ErrLineTooLong is returned when a line grows past the configured cap
// without a terminator.
var ErrLineTooLong = errors.New("sse line exceeds maximum size")

// LineBuffer reassembles complete lines from arbitrarily split chunks.
// A trailing partial line is held until a terminator arrives or Flush is called.
//
// The zero value is ready to use. A LineBuffer is owned by a single stream.
type LineBuffer struct {
	buf []byte
}

// Push appends chunk to the buffer and returns every line completed by it,
// in order, without the terminating '\n'.
func (b *LineBuffer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.buf, '\n')
		if idx < 0 {
			break
		}
		// '\n' never occurs inside a UTF-8 multi-byte sequence, so every
		// completed line holds whole characters.
		lines = append(lines, string(b.buf[:idx]))
		b.buf = b.buf[idx+1:]
	}

	// Compact so the backing array does not grow without bound.
	if len(b.buf) == 0 {
		b.buf = b.buf[:0:0]
	} else if cap(b.buf) > 2*DefaultReadSize && len(b.buf) < cap(b.buf)/4 {
		b.buf = append([]byte(nil), b.buf...)
	}
	return lines
}

// Flush returns the remaining partial line, if any, and resets the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	line := string(b.buf)
	b.buf = nil
	return line, true
}

// Buffered reports how many bytes are waiting for a terminator.
func (b *LineBuffer) Buffered() int {
	return len(b.buf)
}

// Reset discards any buffered partial line.
func (b *LineBuffer) Reset() {
	b.buf = nil
}

// LineReader pulls chunks from an io.Reader and yields complete lines.
// It is finite and not restartable.
type LineReader struct {
	r        io.Reader
	chunk    []byte
	lines    LineBuffer
	queue    []string
	maxLine  int
	err      error
	finished bool
}

// NewLineReader creates a LineReader reading readSize bytes at a time.
// maxLine caps the partial-line buffer; 0 disables the cap.
func NewLineReader(r io.Reader, readSize, maxLine int) *LineReader {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &LineReader{
		r:       r,
		chunk:   make([]byte, readSize),
		maxLine: maxLine,
	}
}

// Next returns the next line. It returns io.EOF once the source is exhausted
// and the final partial line, if any, has been delivered. Any other read
// error is returned and repeated on every later call.
func (lr *LineReader) Next() (string, error) {
	for {
		if len(lr.queue) > 0 {
			line := lr.queue[0]
			lr.queue = lr.queue[1:]
			return line, nil
		}
		if lr.err != nil {
			return "", lr.err
		}
		if lr.finished {
			if line, ok := lr.lines.Flush(); ok {
				return line, nil
			}
			lr.err = io.EOF
			return "", io.EOF
		}
		lr.fill()
	}
}

func (lr *LineReader) fill() {
	n, err := lr.r.Read(lr.chunk)
	if n > 0 {
		lr.queue = lr.lines.Push(lr.chunk[:n])
		if lr.maxLine > 0 && lr.lines.Buffered() > lr.maxLine {
			lr.err = fmt.Errorf("%w (%d bytes buffered)", ErrLineTooLong, lr.lines.Buffered())
			lr.lines.Reset()
			return
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		lr.finished = true
	default:
		// Lines completed before the failure are still delivered first; the
		// partial remainder is not.
		lr.err = err
		lr.lines.Reset()
	}
}
