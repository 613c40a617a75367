// Package httputil provides helpers for working with HTTP payloads safely.
package httputil

import (
	"errors"
	"io"
)

const (
	// DefaultMaxResponseBodyBytes caps non-streaming response bodies to 10MB.
	DefaultMaxResponseBodyBytes int64 = 10 * 1024 * 1024

	// MaxErrorBodyBytes caps the bytes read from a failed response when
	// building an error.
	MaxErrorBodyBytes int64 = 64 * 1024

	maxDrainBytes int64 = 4 * 1024
)

var ErrResponseBodyTooLarge = errors.New("response body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns ErrResponseBodyTooLarge when exceeded.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		body = body[:int(maxBytes)]
		return body, ErrResponseBodyTooLarge
	}
	return body, nil
}

// ReadErrorBody reads the body of a failed response. Truncation is not an
// error here: a partial error body is still useful.
func ReadErrorBody(body io.Reader) []byte {
	data, err := ReadLimitedBody(body, MaxErrorBodyBytes)
	if err != nil && !errors.Is(err, ErrResponseBodyTooLarge) {
		return nil
	}
	return data
}

// DrainAndClose discards a small remainder of body so the connection can be
// reused, then closes it.
func DrainAndClose(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	return body.Close()
}
