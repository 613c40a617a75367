package observability

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the client-generated id of a call.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

type requestIDKey struct{}

// GenerateRequestID returns a random UUID.
func GenerateRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID attaches requestID to ctx so the next call sends it
// instead of a generated one. Unusable ids leave ctx unchanged.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if id, ok := SanitizeRequestID(requestID); ok {
		return context.WithValue(ctx, requestIDKey{}, id)
	}
	return ctx
}

// RequestIDFromContext returns the id attached to ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetOrCreateRequestID returns ctx's id, attaching a generated one first if
// there is none.
func GetOrCreateRequestID(ctx context.Context) (context.Context, string) {
	id := RequestIDFromContext(ctx)
	if id == "" {
		id = GenerateRequestID()
		ctx = context.WithValue(ctx, requestIDKey{}, id)
	}
	return ctx, id
}

// SanitizeRequestID trims value and reports whether it is safe to send as a
// header: 1 to 128 characters from [A-Za-z0-9._-].
func SanitizeRequestID(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxRequestIDLen {
		return "", false
	}
	if strings.IndexFunc(value, invalidIDRune) >= 0 {
		return "", false
	}
	return value, true
}

func invalidIDRune(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return false
	case r == '-' || r == '_' || r == '.':
		return false
	}
	return true
}
