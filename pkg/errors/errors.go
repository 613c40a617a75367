// Package errors defines the error types returned by the watsonx.ai client.
// Upstream error envelopes are mapped to APIError so callers can branch on
// Type and Retryable without parsing messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// APIError represents an error response from the watsonx.ai API or IAM.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Trace      string `json:"trace,omitempty"`
	MoreInfo   string `json:"more_info,omitempty"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (code=%s, status=%d, trace=%s)",
			e.Type, e.Message, e.Code, e.StatusCode, e.Trace)
	}
	return fmt.Sprintf("[%s] %s (status=%d, trace=%s)",
		e.Type, e.Message, e.StatusCode, e.Trace)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypePermission         = "permission_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeContextLength      = "context_length_exceeded"
)

// Client-side validation errors.
var (
	ErrMissingModel      = errors.New("model_id is required")
	ErrMissingScope      = errors.New("project_id or space_id is required")
	ErrMissingInput      = errors.New("input is required")
	ErrMissingMessages   = errors.New("messages is required")
	ErrMissingDeployment = errors.New("deployment id is required")
	ErrNilRequest        = errors.New("request is nil")
)

func newError(status int, typ, code, message string, retryable bool) *APIError {
	return &APIError{
		StatusCode: status,
		Code:       code,
		Message:    message,
		Type:       typ,
		Retryable:  retryable,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(code, message string) *APIError {
	return newError(http.StatusUnauthorized, TypeAuthentication, code, message, false)
}

// NewPermissionError creates a permission error (403).
func NewPermissionError(code, message string) *APIError {
	return newError(http.StatusForbidden, TypePermission, code, message, false)
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(code, message string) *APIError {
	return newError(http.StatusTooManyRequests, TypeRateLimit, code, message, true)
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(code, message string) *APIError {
	return newError(http.StatusBadRequest, TypeInvalidRequest, code, message, false)
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(code, message string) *APIError {
	return newError(http.StatusNotFound, TypeNotFound, code, message, false)
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(code, message string) *APIError {
	return newError(http.StatusRequestTimeout, TypeTimeout, code, message, true)
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(code, message string) *APIError {
	return newError(http.StatusServiceUnavailable, TypeServiceUnavailable, code, message, true)
}

// NewInternalError creates an internal server error (500).
func NewInternalError(code, message string) *APIError {
	return newError(http.StatusInternalServerError, TypeInternalError, code, message, true)
}

// envelope is the watsonx.ai error body:
// {"errors":[{"code":"...","message":"...","more_info":"..."}],"trace":"...","status_code":400}
type envelope struct {
	Errors []struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		MoreInfo string `json:"more_info"`
	} `json:"errors"`
	Trace      string `json:"trace"`
	StatusCode int    `json:"status_code"`

	// IAM uses a different shape.
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// FromResponse converts a non-2xx response body into an APIError.
func FromResponse(statusCode int, body []byte) *APIError {
	code, message, trace, moreInfo := "", "", "", ""

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case len(env.Errors) > 0:
			code = env.Errors[0].Code
			moreInfo = env.Errors[0].MoreInfo
			msgs := make([]string, 0, len(env.Errors))
			for _, e := range env.Errors {
				if e.Message != "" {
					msgs = append(msgs, e.Message)
				}
			}
			message = strings.Join(msgs, "; ")
		case env.ErrorMessage != "":
			code = env.ErrorCode
			message = env.ErrorMessage
		}
		trace = env.Trace
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	var apiErr *APIError
	switch statusCode {
	case http.StatusUnauthorized:
		apiErr = NewAuthenticationError(code, message)
	case http.StatusForbidden:
		apiErr = NewPermissionError(code, message)
	case http.StatusTooManyRequests:
		apiErr = NewRateLimitError(code, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		apiErr = NewInvalidRequestError(code, message)
		if strings.Contains(code, "token_quota_reached") || strings.Contains(message, "context length") {
			apiErr.Type = TypeContextLength
		}
	case http.StatusNotFound:
		apiErr = NewNotFoundError(code, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		apiErr = NewTimeoutError(code, message)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		apiErr = NewServiceUnavailableError(code, message)
	default:
		apiErr = NewInternalError(code, message)
		apiErr.Retryable = statusCode >= 500
	}
	apiErr.StatusCode = statusCode
	apiErr.Trace = trace
	apiErr.MoreInfo = moreInfo
	return apiErr
}

// IsRetryable reports whether err is an APIError marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// IsType reports whether err is an APIError of the given type.
func IsType(err error, typ string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == typ
}
