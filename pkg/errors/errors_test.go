package errors

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("error message format", func(t *testing.T) {
		err := NewRateLimitError("rate_limit_reached", "too many requests")
		err.Trace = "abc123"
		msg := err.Error()

		contains := []string{"rate_limit_error", "rate_limit_reached", "429", "abc123"}
		for _, s := range contains {
			if !strings.Contains(msg, s) {
				t.Errorf("error message should contain %q, got %q", s, msg)
			}
		}
	})

	t.Run("HTTP status codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      *APIError
			wantCode int
		}{
			{"auth error", NewAuthenticationError("c", "msg"), 401},
			{"permission", NewPermissionError("c", "msg"), 403},
			{"rate limit", NewRateLimitError("c", "msg"), 429},
			{"bad request", NewInvalidRequestError("c", "msg"), 400},
			{"not found", NewNotFoundError("c", "msg"), 404},
			{"timeout", NewTimeoutError("c", "msg"), 408},
			{"unavailable", NewServiceUnavailableError("c", "msg"), 503},
			{"internal", NewInternalError("c", "msg"), 500},
			{"zero status", &APIError{}, 500},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.HTTPStatusCode(); got != tt.wantCode {
					t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantCode)
				}
			})
		}
	})
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantType      string
		wantCode      string
		wantMessage   string
		wantTrace     string
		wantRetryable bool
	}{
		{
			name:        "watsonx envelope",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"code":"json_validation_error","message":"model_id is invalid","more_info":"https://cloud.ibm.com/apidocs"}],"trace":"t-1","status_code":400}`,
			wantType:    TypeInvalidRequest,
			wantCode:    "json_validation_error",
			wantMessage: "model_id is invalid",
			wantTrace:   "t-1",
		},
		{
			name:        "multiple messages are joined",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"code":"a","message":"first"},{"code":"b","message":"second"}],"trace":"t-2"}`,
			wantType:    TypeInvalidRequest,
			wantCode:    "a",
			wantMessage: "first; second",
			wantTrace:   "t-2",
		},
		{
			name:        "token quota",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"code":"token_quota_reached","message":"quota"}]}`,
			wantType:    TypeContextLength,
			wantCode:    "token_quota_reached",
			wantMessage: "quota",
		},
		{
			name:        "iam shape",
			status:      http.StatusBadRequest,
			body:        `{"errorCode":"BXNIM0415E","errorMessage":"Provided API key could not be found."}`,
			wantType:    TypeInvalidRequest,
			wantCode:    "BXNIM0415E",
			wantMessage: "Provided API key could not be found.",
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"errors":[{"code":"authentication_token_expired","message":"expired"}]}`,
			wantType:    TypeAuthentication,
			wantCode:    "authentication_token_expired",
			wantMessage: "expired",
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{}`,
			wantType:      TypeRateLimit,
			wantMessage:   "{}",
			wantRetryable: true,
		},
		{
			name:          "plain text body",
			status:        http.StatusBadGateway,
			body:          "upstream connect error\n",
			wantType:      TypeServiceUnavailable,
			wantMessage:   "upstream connect error",
			wantRetryable: true,
		},
		{
			name:          "empty body falls back to status text",
			status:        http.StatusInternalServerError,
			body:          "",
			wantType:      TypeInternalError,
			wantMessage:   "Internal Server Error",
			wantRetryable: true,
		},
		{
			name:        "conflict is not retryable",
			status:      http.StatusConflict,
			body:        `{"errors":[{"code":"conflict","message":"exists"}]}`,
			wantType:    TypeInternalError,
			wantCode:    "conflict",
			wantMessage: "exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse(tt.status, []byte(tt.body))
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
			if err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", err.Type, tt.wantType)
			}
			if err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMessage)
			}
			if err.Trace != tt.wantTrace {
				t.Errorf("Trace = %q, want %q", err.Trace, tt.wantTrace)
			}
			if err.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("wrapped: %w", NewServiceUnavailableError("", "down"))) {
		t.Error("wrapped retryable error should be retryable")
	}
	if IsRetryable(NewInvalidRequestError("", "bad")) {
		t.Error("invalid request should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("non API errors are not retryable")
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("call: %w", NewNotFoundError("model_not_supported", "nope"))
	if !IsType(err, TypeNotFound) {
		t.Error("expected not found type")
	}
	if IsType(err, TypeRateLimit) {
		t.Error("unexpected rate limit type")
	}
}
