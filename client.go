package wxai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/wxai/internal/httputil"
	"github.com/blueberrycongee/wxai/internal/metrics"
	"github.com/blueberrycongee/wxai/internal/observability"
	"github.com/blueberrycongee/wxai/internal/resilience"
	"github.com/blueberrycongee/wxai/internal/streaming"
	"github.com/blueberrycongee/wxai/pkg/auth"
	"github.com/blueberrycongee/wxai/pkg/cache"
	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// ErrNoCredentials is returned by New when no way to authenticate was
// configured.
var ErrNoCredentials = errors.New("wxai: no credentials: use WithAPIKey, WithBearerToken or WithAuthenticator")

// Client talks to one watsonx.ai region.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL     *url.URL
	config      *ClientConfig
	httpClient  *http.Client
	auth        auth.Authenticator
	cache       cache.Cache
	logger      *slog.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	limiter     *resilience.RateLimiter
	backoff     resilience.Backoff
	decoderOpts []streaming.DecoderOption
	userAgent   string

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
}

// New creates a new client with the given options.
//
// Example:
//
//	client, err := wxai.New(
//	    wxai.WithAPIKey(os.Getenv("WATSONX_APIKEY")),
//	    wxai.WithProjectID(os.Getenv("WATSONX_PROJECT_ID")),
//	    wxai.WithBaseURL("https://eu-de.ml.cloud.ibm.com"),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("wxai: invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:   base,
		config:    cfg,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		userAgent: "wxai-go/" + Version,
		backoff: resilience.Backoff{
			Base:   cfg.RetryBackoff,
			Max:    cfg.RetryMaxBackoff,
			Jitter: cfg.RetryJitter,
		},
		breakers: make(map[string]*resilience.CircuitBreaker),
	}

	c.httpClient = cfg.HTTPClient
	if c.httpClient == nil {
		// Initialize HTTP client with connection pooling
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Timeout,
		}
	}

	c.auth, err = c.newAuthenticator()
	if err != nil {
		return nil, err
	}

	if cfg.MetricsRegisterer != nil {
		c.metrics = metrics.NewCollector(cfg.MetricsRegisterer)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(observability.TracerName, trace.WithInstrumentationVersion(Version))

	if cfg.RateLimitRPS > 0 {
		c.limiter = resilience.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	if cfg.StreamReadSize > 0 {
		c.decoderOpts = append(c.decoderOpts, streaming.WithReadSize(cfg.StreamReadSize))
	}
	if cfg.StreamMaxLineSize != 0 {
		c.decoderOpts = append(c.decoderOpts, streaming.WithMaxLineSize(cfg.StreamMaxLineSize))
	}

	c.logger.Info("wxai client initialized",
		"base_url", base.String(),
		"api_version", cfg.APIVersion,
		"retry_count", cfg.RetryCount,
		"rate_limited", c.limiter != nil,
		"circuit_breaker", cfg.CircuitBreaker != nil,
		"cache_enabled", c.cache != nil,
	)

	return c, nil
}

func (c *Client) newAuthenticator() (auth.Authenticator, error) {
	cfg := c.config
	switch {
	case cfg.Authenticator != nil:
		return cfg.Authenticator, nil
	case cfg.APIKey != "":
		a, err := auth.NewIAMAuthenticator(auth.IAMConfig{
			APIKey:     cfg.APIKey,
			URL:        cfg.IAMURL,
			HTTPClient: c.httpClient,
			Cache:      c.cache,
			Logger:     c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("wxai: %w", err)
		}
		return a, nil
	case cfg.BearerToken != "":
		a, err := auth.NewBearerToken(cfg.BearerToken)
		if err != nil {
			return nil, fmt.Errorf("wxai: %w", err)
		}
		return a, nil
	default:
		return nil, ErrNoCredentials
	}
}

// Scope returns the default project or space.
func (c *Client) Scope() Scope {
	return c.config.Scope
}

// Close releases idle connections and the configured cache.
func (c *Client) Close() error {
	var err error
	if c.cache != nil {
		err = c.cache.Close()
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Info("wxai client closed")
	return err
}

// call describes one API operation.
type call struct {
	// operation names the call in metrics, spans and breakers.
	operation    string
	method       string
	path         string
	query        url.Values
	body         any
	model        string
	deploymentID string
	stream       bool
}

func (cl *call) labels() metrics.Labels {
	model := cl.model
	if model == "" && cl.deploymentID != "" {
		model = "deployment/" + cl.deploymentID
	}
	return metrics.Labels{Operation: cl.operation, Model: model}
}

func (c *Client) startSpan(ctx context.Context, cl *call) (context.Context, trace.Span) {
	return observability.StartRequestSpan(ctx, c.tracer, observability.SpanAttributes{
		Operation:    cl.operation,
		Model:        cl.model,
		DeploymentID: cl.deploymentID,
		Stream:       cl.stream,
	})
}

// do sends cl, retrying retryable failures, and returns a 2xx response whose
// body the caller must close.
func (c *Client) do(ctx context.Context, cl *call) (*http.Response, error) {
	var payload []byte
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", cl.operation, err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			c.metrics.RecordRetry(cl.operation)
			c.logger.DebugContext(ctx, "retrying watsonx request",
				"operation", cl.operation,
				"attempt", attempt,
				"error", lastErr,
			)
			if err := c.backoff.Wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		resp, err := c.executeOnce(ctx, cl, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !c.shouldRetry(ctx, err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var apiErr *llmerrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	// Transport failures.
	return true
}

func (c *Client) executeOnce(ctx context.Context, cl *call, payload []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, cl, payload)
	if err != nil {
		return nil, err
	}

	breaker := c.breaker(cl.operation)
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, fmt.Errorf("%s: %w", cl.operation, err)
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rm := &metrics.RequestMetrics{Labels: cl.labels(), StartTime: time.Now()}
	resp, err := c.httpClient.Do(req)
	rm.EndTime = time.Now()
	if err != nil {
		rm.ErrorType = "transport"
		c.metrics.RecordRequest(rm)
		c.recordBreaker(breaker, err)
		return nil, fmt.Errorf("execute request: %w", err)
	}

	rm.StatusCode = resp.StatusCode
	observability.RecordHTTPStatus(trace.SpanFromContext(ctx), resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
			if d, ok := resilience.ParseRetryAfter(resp.Header, time.Now()); ok {
				c.limiter.PauseUntil(time.Now().Add(d))
				c.logger.WarnContext(ctx, "rate limited by service", "operation", cl.operation, "retry_after", d)
			}
		}
		body := httputil.ReadErrorBody(resp.Body)
		_ = resp.Body.Close()
		apiErr := llmerrors.FromResponse(resp.StatusCode, body)
		rm.ErrorType = apiErr.Type
		c.metrics.RecordRequest(rm)
		c.recordBreaker(breaker, apiErr)
		return nil, apiErr
	}

	rm.Success = true
	c.metrics.RecordRequest(rm)
	c.recordBreaker(breaker, nil)
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, cl *call, payload []byte) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + cl.path
	q := url.Values{}
	for k, vs := range cl.query {
		q[k] = vs
	}
	q.Set("version", c.config.APIVersion)
	u.RawQuery = q.Encode()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range c.config.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(observability.RequestIDHeader, observability.RequestIDFromContext(ctx))

	if err := c.auth.Authenticate(ctx, req); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return req, nil
}

// breaker returns the breaker of operation, or nil when breaking is off.
func (c *Client) breaker(operation string) *resilience.CircuitBreaker {
	if c.config.CircuitBreaker == nil {
		return nil
	}
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if cb, ok := c.breakers[operation]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(operation, *c.config.CircuitBreaker)
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		c.metrics.SetCircuitState(name, int(to))
		c.logger.Warn("circuit breaker state changed",
			"operation", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	c.breakers[operation] = cb
	return cb
}

func (c *Client) recordBreaker(cb *resilience.CircuitBreaker, err error) {
	if cb != nil {
		cb.Record(err)
	}
}

// doJSON runs a unary call and decodes the response into T. observe, when
// set, sees the decoded response while the span is still open.
func doJSON[T any](ctx context.Context, c *Client, cl *call, observe func(trace.Span, *T)) (*T, error) {
	ctx, _ = observability.GetOrCreateRequestID(ctx)
	ctx, span := c.startSpan(ctx, cl)
	defer span.End()

	resp, err := c.do(ctx, cl)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes)
	if err != nil {
		err = fmt.Errorf("read %s response: %w", cl.operation, err)
		observability.RecordError(span, err)
		return nil, err
	}

	out := new(T)
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		err = fmt.Errorf("decode %s response: %w", cl.operation, err)
		observability.RecordError(span, err)
		return nil, err
	}
	if observe != nil {
		observe(span, out)
	}
	return out, nil
}

// doNoContent runs a unary call whose response body is ignored.
func (c *Client) doNoContent(ctx context.Context, cl *call) error {
	ctx, _ = observability.GetOrCreateRequestID(ctx)
	ctx, span := c.startSpan(ctx, cl)
	defer span.End()

	resp, err := c.do(ctx, cl)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	return httputil.DrainAndClose(resp.Body)
}

func (c *Client) recordUsage(span trace.Span, model string, input, output int, stopReason string) {
	observability.RecordUsage(span, input, output, stopReason)
	c.metrics.RecordTokens(model, input, output)
}

func deploymentPath(id, suffix string) string {
	return "/ml/v1/deployments/" + url.PathEscape(id) + suffix
}
