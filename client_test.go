package wxai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/blueberrycongee/wxai/internal/observability"
	"github.com/blueberrycongee/wxai/internal/resilience"
	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
	"github.com/blueberrycongee/wxai/pkg/types"
)

const textGenResponseBody = `{
	"model_id": "ibm/granite-13b-instruct-v2",
	"created_at": "2024-05-01T10:00:00Z",
	"results": [{
		"generated_text": "Hello!",
		"generated_token_count": 3,
		"input_token_count": 2,
		"stop_reason": "eos_token"
	}]
}`

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(WithLogger(discardLogger()))
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("New() error = %v, want ErrNoCredentials", err)
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(WithBaseURL("not a url"), WithBearerToken("t"), WithLogger(discardLogger()))
	if err == nil {
		t.Fatal("New() expected error for invalid base URL")
	}
}

func TestNew_Defaults(t *testing.T) {
	client, err := New(WithBearerToken("t"), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if client.baseURL.String() != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL.String(), DefaultBaseURL)
	}
	if client.config.APIVersion != DefaultAPIVersion {
		t.Errorf("APIVersion = %q, want %q", client.config.APIVersion, DefaultAPIVersion)
	}
	if client.limiter != nil {
		t.Error("rate limiter should be off by default")
	}
	if client.breaker("text_generation") != nil {
		t.Error("circuit breaker should be off by default")
	}
}

func TestClient_GenerateText_RequestShape(t *testing.T) {
	var (
		gotReq  *http.Request
		gotBody map[string]any
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithHeaders(http.Header{"X-Tenant": {"blue"}}))

	req := textGenRequest()
	resp, err := client.GenerateText(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "Hello!")
	}

	if gotReq.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", gotReq.Method)
	}
	if gotReq.URL.Path != "/ml/v1/text/generation" {
		t.Errorf("path = %s", gotReq.URL.Path)
	}
	if v := gotReq.URL.Query().Get("version"); v != DefaultAPIVersion {
		t.Errorf("version = %q, want %q", v, DefaultAPIVersion)
	}
	if v := gotReq.Header.Get("Authorization"); v != "Bearer test-token" {
		t.Errorf("Authorization = %q", v)
	}
	if v := gotReq.Header.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q", v)
	}
	if v := gotReq.Header.Get("Accept"); v != "application/json" {
		t.Errorf("Accept = %q", v)
	}
	if v := gotReq.Header.Get("User-Agent"); v != "wxai-go/"+Version {
		t.Errorf("User-Agent = %q", v)
	}
	if v := gotReq.Header.Get("X-Request-ID"); v == "" {
		t.Error("X-Request-ID is empty")
	}
	if v := gotReq.Header.Get("X-Tenant"); v != "blue" {
		t.Errorf("X-Tenant = %q", v)
	}

	if gotBody["project_id"] != "proj-1" {
		t.Errorf("project_id = %v, want proj-1", gotBody["project_id"])
	}
	if gotBody["model_id"] != "ibm/granite-13b-instruct-v2" {
		t.Errorf("model_id = %v", gotBody["model_id"])
	}
	if !req.Scope.IsZero() {
		t.Error("the caller's request must not be modified")
	}
}

func TestClient_ExplicitScopeWins(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}))

	req := textGenRequest()
	req.SpaceID = "space-9"
	if _, err := client.GenerateText(context.Background(), req); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if gotBody["space_id"] != "space-9" {
		t.Errorf("space_id = %v, want space-9", gotBody["space_id"])
	}
	if _, ok := gotBody["project_id"]; ok {
		t.Error("default project must not be added when a space is set")
	}
}

func TestClient_RequestIDFromContext(t *testing.T) {
	var got string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(observability.RequestIDHeader)
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}))

	ctx := observability.ContextWithRequestID(context.Background(), "req-abc")
	if _, err := client.GenerateText(ctx, textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want req-abc", got)
	}
}

func TestClient_ValidationFailsBeforeRequest(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.GenerateText(context.Background(), &TextGenRequest{Input: "hi"})
	if !errors.Is(err, llmerrors.ErrMissingModel) {
		t.Errorf("error = %v, want ErrMissingModel", err)
	}
	_, err = client.Chat(context.Background(), &ChatRequest{ModelID: "m"})
	if !errors.Is(err, llmerrors.ErrMissingMessages) {
		t.Errorf("error = %v, want ErrMissingMessages", err)
	}
	_, err = client.GenerateText(context.Background(), nil)
	if !errors.Is(err, llmerrors.ErrNilRequest) {
		t.Errorf("error = %v, want ErrNilRequest", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("server saw %d requests, want 0", n)
	}
}

func TestClient_MissingScope(t *testing.T) {
	client, err := New(WithBaseURL("http://127.0.0.1:1"), WithBearerToken("t"), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	_, err = client.GenerateText(context.Background(), textGenRequest())
	if !errors.Is(err, llmerrors.ErrMissingScope) {
		t.Errorf("error = %v, want ErrMissingScope", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{
			"errors": [{"code": "model_not_supported", "message": "Model 'x' is not supported"}],
			"trace": "abc123",
			"status_code": 404
		}`)
	}))

	_, err := client.GenerateText(context.Background(), textGenRequest())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Type != llmerrors.TypeNotFound {
		t.Errorf("Type = %q, want %q", apiErr.Type, llmerrors.TypeNotFound)
	}
	if apiErr.Code != "model_not_supported" || apiErr.Trace != "abc123" || apiErr.StatusCode != 404 {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
}

func TestClient_RetrySuccess(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			writeJSON(w, http.StatusServiceUnavailable, `{"errors":[{"code":"busy","message":"try later"}]}`)
			return
		}
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithRetry(3, time.Millisecond), WithRetryJitter(0))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestClient_RetryExhausted(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusTooManyRequests, `{"errors":[{"code":"rate_limit","message":"slow down"}]}`)
	}), WithRetry(2, time.Millisecond))

	_, err := client.GenerateText(context.Background(), textGenRequest())
	if !llmerrors.IsType(err, llmerrors.TypeRateLimit) {
		t.Fatalf("error = %v, want rate limit error", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, `{"errors":[{"code":"invalid_input","message":"bad"}]}`)
	}), WithRetry(3, time.Millisecond))

	_, err := client.GenerateText(context.Background(), textGenRequest())
	if !llmerrors.IsType(err, llmerrors.TypeInvalidRequest) {
		t.Fatalf("error = %v, want invalid request error", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestClient_RetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		cancel()
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	}), WithRetry(5, time.Hour))

	_, err := client.GenerateText(ctx, textGenRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	}), WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}))

	for i := 0; i < 2; i++ {
		if _, err := client.GenerateText(context.Background(), textGenRequest()); err == nil {
			t.Fatal("expected upstream error")
		}
	}
	_, err := client.GenerateText(context.Background(), textGenRequest())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}

	// Breakers are per operation.
	if got := client.breaker("chat").State(); got != resilience.StateClosed {
		t.Errorf("chat breaker state = %v, want closed", got)
	}
}

func TestClient_RateLimitWaitHonorsContext(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithRateLimit(0.001, 1))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("first GenerateText() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.GenerateText(ctx, textGenRequest()); err == nil {
		t.Fatal("expected rate limit wait to fail")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithMetrics(reg))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}

	count, err := testutil.GatherAndCount(reg, "wxai_requests_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("wxai_requests_total series = %d, want 1", count)
	}
	count, err = testutil.GatherAndCount(reg, "wxai_tokens_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("wxai_tokens_total series = %d, want 2", count)
	}
}

func TestClient_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}), WithTracerProvider(tp))

	if _, err := client.GenerateText(context.Background(), textGenRequest()); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "watsonx.text_generation" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if v := attrs["gen_ai.usage.input_tokens"]; v.AsInt64() != 2 {
		t.Errorf("input tokens = %v, want 2", v.AsInt64())
	}
	if v := attrs["gen_ai.response.finish_reason"]; v.AsString() != "eos_token" {
		t.Errorf("finish reason = %q", v.AsString())
	}
	if v := attrs["http.response.status_code"]; v.AsInt64() != 200 {
		t.Errorf("status code = %v", v.AsInt64())
	}
}

func TestClient_Chat(t *testing.T) {
	var path string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(w, http.StatusOK, `{
			"id": "chat-1",
			"model_id": "ibm/granite-3-8b-instruct",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))

	resp, err := client.Chat(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if path != "/ml/v1/text/chat" {
		t.Errorf("path = %s", path)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Text() != "Hi there" {
		t.Errorf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestClient_Deployments(t *testing.T) {
	var (
		path    string
		gotBody map[string]any
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, textGenResponseBody)
	}))

	_, err := client.DeploymentGenerateText(context.Background(), "dep-1", &TextGenRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("DeploymentGenerateText() error = %v", err)
	}
	if path != "/ml/v1/deployments/dep-1/text/generation" {
		t.Errorf("path = %s", path)
	}
	if _, ok := gotBody["project_id"]; ok {
		t.Error("deployment requests must not carry a project")
	}

	_, err = client.DeploymentGenerateText(context.Background(), " ", &TextGenRequest{Input: "hi"})
	if !errors.Is(err, llmerrors.ErrMissingDeployment) {
		t.Errorf("error = %v, want ErrMissingDeployment", err)
	}
	_, err = client.DeploymentChat(context.Background(), "dep-1", &ChatRequest{})
	if !errors.Is(err, llmerrors.ErrMissingMessages) {
		t.Errorf("error = %v, want ErrMissingMessages", err)
	}
}

func TestClient_EmbedRerankTokenize(t *testing.T) {
	paths := make(chan string, 3)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			writeJSON(w, http.StatusOK, `{"model_id":"m","results":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}],"input_token_count":4}`)
		case strings.HasSuffix(r.URL.Path, "/rerank"):
			writeJSON(w, http.StatusOK, `{"model_id":"m","results":[{"index":1,"score":0.9},{"index":0,"score":0.1}],"input_token_count":8}`)
		default:
			writeJSON(w, http.StatusOK, `{"model_id":"m","result":{"token_count":3,"tokens":["a","b","c"]}}`)
		}
	}))
	ctx := context.Background()

	emb, err := client.Embed(ctx, &EmbeddingRequest{ModelID: "m", Inputs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if v := emb.Vectors(); len(v) != 2 || v[1][0] != 0.3 {
		t.Errorf("Vectors() = %v", v)
	}

	rr, err := client.Rerank(ctx, &RerankRequest{
		ModelID: "m",
		Query:   "q",
		Inputs:  []types.RerankInput{{Text: "x"}, {Text: "y"}},
	})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(rr.Results) != 2 || rr.Results[0].Index != 1 {
		t.Errorf("Rerank results = %+v", rr.Results)
	}

	tok, err := client.Tokenize(ctx, &TokenizeRequest{ModelID: "m", Input: "abc"})
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if tok.Result.TokenCount != 3 {
		t.Errorf("TokenCount = %d, want 3", tok.Result.TokenCount)
	}

	want := []string{"/ml/v1/text/embeddings", "/ml/v1/text/rerank", "/ml/v1/text/tokenization"}
	for _, w := range want {
		if got := <-paths; got != w {
			t.Errorf("path = %s, want %s", got, w)
		}
	}
}

func TestClient_ForecastTimeSeries(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ml/v1/time_series/forecast" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, `{"model_id":"ibm/granite-ttm-512-96-r2","results":[{"date":["2024-01-02"],"value":[4.2]}],"output_data_points":1}`)
	}))

	resp, err := client.ForecastTimeSeries(context.Background(), &ForecastRequest{
		ModelID: "ibm/granite-ttm-512-96-r2",
		Data: map[string]json.RawMessage{
			"date":  json.RawMessage(`["2024-01-01"]`),
			"value": json.RawMessage(`[4.0]`),
		},
		Schema: types.ForecastSchema{TimestampColumn: "date", TargetColumns: []string{"value"}},
	})
	if err != nil {
		t.Fatalf("ForecastTimeSeries() error = %v", err)
	}
	if resp.OutputDataPoints != 1 || len(resp.Results) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gotBody["project_id"] != "proj-1" {
		t.Errorf("project_id = %v", gotBody["project_id"])
	}
}
