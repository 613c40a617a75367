package wxai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blueberrycongee/wxai/pkg/auth"
)

func TestOptions_Apply(t *testing.T) {
	cfg := defaultConfig()
	opts := []Option{
		WithBaseURL("https://eu-de.ml.cloud.ibm.com"),
		WithAPIVersion("2025-02-11"),
		WithSpaceID("space-1"),
		WithRetry(5, 2*time.Second),
		WithRetryMaxBackoff(10 * time.Second),
		WithRetryJitter(0.5),
		WithRateLimit(8, 4),
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3}),
		WithModelSpecsTTL(time.Hour),
		WithStreamMaxLineSize(1 << 10),
		WithHeaders(http.Header{"X-A": {"1"}}),
		WithHeaders(http.Header{"X-A": {"2"}}),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.BaseURL != "https://eu-de.ml.cloud.ibm.com" || cfg.APIVersion != "2025-02-11" {
		t.Errorf("service options not applied: %+v", cfg)
	}
	if cfg.Scope.SpaceID != "space-1" || cfg.Scope.ProjectID != "" {
		t.Errorf("Scope = %+v", cfg.Scope)
	}
	if cfg.RetryCount != 5 || cfg.RetryBackoff != 2*time.Second || cfg.RetryMaxBackoff != 10*time.Second || cfg.RetryJitter != 0.5 {
		t.Errorf("retry options not applied: %+v", cfg)
	}
	if cfg.RateLimitRPS != 8 || cfg.RateLimitBurst != 4 {
		t.Errorf("rate limit = %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.CircuitBreaker == nil || cfg.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("CircuitBreaker = %+v", cfg.CircuitBreaker)
	}
	if got := cfg.Headers.Values("X-A"); len(got) != 2 {
		t.Errorf("headers = %v, want both values", got)
	}
}

func TestOptions_ProjectReplacesSpace(t *testing.T) {
	cfg := defaultConfig()
	WithSpaceID("space-1")(cfg)
	WithProjectID("proj-1")(cfg)
	if cfg.Scope.SpaceID != "" || cfg.Scope.ProjectID != "proj-1" {
		t.Errorf("Scope = %+v", cfg.Scope)
	}
}

func TestOptions_CustomAuthenticatorWins(t *testing.T) {
	var called bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Custom abc" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithAuthenticator(auth.AuthenticatorFunc(func(_ context.Context, r *http.Request) error {
		called = true
		r.Header.Set("Authorization", "Custom abc")
		return nil
	})))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if !called {
		t.Error("custom authenticator was not used")
	}
}

func TestOptions_APIKeyUsesIAM(t *testing.T) {
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("apikey") != "my-api-key" {
			t.Errorf("unexpected IAM form: %v", r.PostForm)
		}
		writeJSON(w, http.StatusOK, `{"access_token":"iam-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer iam.Close()

	var got string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithAPIKey("my-api-key"), WithIAMURL(iam.URL+"/identity/token"))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "Bearer iam-token" {
		t.Errorf("Authorization = %q, want the IAM token", got)
	}
}
