package wxai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/wxai/internal/resilience"
	"github.com/blueberrycongee/wxai/pkg/auth"
	"github.com/blueberrycongee/wxai/pkg/types"
)

// CircuitBreakerConfig configures the per-operation circuit breakers.
type CircuitBreakerConfig = resilience.CircuitBreakerConfig

// ClientConfig holds all configuration for the client.
type ClientConfig struct {
	// Service
	BaseURL    string
	APIVersion string
	Scope      types.Scope
	Headers    http.Header

	// Credentials. Authenticator wins over APIKey, which wins over
	// BearerToken.
	Authenticator auth.Authenticator
	APIKey        string
	IAMURL        string
	BearerToken   string

	// HTTP
	HTTPClient *http.Client
	Timeout    time.Duration

	// Retries
	RetryCount      int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	RetryJitter     float64

	// Client-side rate limiting. Disabled when RateLimitRPS is 0.
	RateLimitRPS   float64
	RateLimitBurst int

	// Circuit breaking. Disabled when nil.
	CircuitBreaker *CircuitBreakerConfig

	// Caching of model specs and IAM tokens.
	Cache         Cache
	ModelSpecsTTL time.Duration

	// Streaming
	StreamReadSize    int
	StreamMaxLineSize int

	// Observability
	Logger            *slog.Logger
	MetricsRegisterer prometheus.Registerer
	TracerProvider    trace.TracerProvider
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         DefaultBaseURL,
		APIVersion:      DefaultAPIVersion,
		Timeout:         2 * time.Minute,
		RetryCount:      3,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 5 * time.Second,
		RetryJitter:     0.2,
		ModelSpecsTTL:   10 * time.Minute,
		Logger:          slog.Default(),
	}
}

// WithBaseURL sets the regional service URL, e.g.
// "https://eu-de.ml.cloud.ibm.com".
func WithBaseURL(u string) Option {
	return func(c *ClientConfig) {
		c.BaseURL = u
	}
}

// WithAPIVersion sets the "version" query parameter sent with every request.
func WithAPIVersion(version string) Option {
	return func(c *ClientConfig) {
		c.APIVersion = version
	}
}

// WithAuthenticator sets a custom authenticator.
//
// Example:
//
//	wxai.WithAuthenticator(auth.AuthenticatorFunc(func(ctx context.Context, r *http.Request) error {
//	    r.Header.Set("Authorization", "Bearer "+tokenFromVault(ctx))
//	    return nil
//	}))
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *ClientConfig) {
		c.Authenticator = a
	}
}

// WithAPIKey authenticates with an IBM Cloud API key. The key is exchanged
// for IAM tokens, which are reused until shortly before they expire.
func WithAPIKey(apiKey string) Option {
	return func(c *ClientConfig) {
		c.APIKey = apiKey
	}
}

// WithIAMURL overrides the IAM token endpoint.
func WithIAMURL(u string) Option {
	return func(c *ClientConfig) {
		c.IAMURL = u
	}
}

// WithBearerToken authenticates with a fixed bearer token.
func WithBearerToken(token string) Option {
	return func(c *ClientConfig) {
		c.BearerToken = token
	}
}

// WithProjectID sets the default project for requests that carry neither a
// project nor a space.
func WithProjectID(id string) Option {
	return func(c *ClientConfig) {
		c.Scope = types.Scope{ProjectID: id}
	}
}

// WithSpaceID sets the default deployment space for requests that carry
// neither a project nor a space.
func WithSpaceID(id string) Option {
	return func(c *ClientConfig) {
		c.Scope = types.Scope{SpaceID: id}
	}
}

// WithHTTPClient sets the HTTP client. WithTimeout is ignored when a client
// is supplied.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP request timeout.
// Streams are bounded by it too, so long generations need a generous value.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = d
	}
}

// WithRetry configures retry behavior.
// count: number of retry attempts (0 = no retries)
// backoff: initial backoff duration (exponential backoff is applied)
func WithRetry(count int, backoff time.Duration) Option {
	return func(c *ClientConfig) {
		c.RetryCount = count
		c.RetryBackoff = backoff
	}
}

// WithRetryMaxBackoff sets the maximum backoff duration for retries.
// Use 0 to disable the cap.
func WithRetryMaxBackoff(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.RetryMaxBackoff = d
	}
}

// WithRetryJitter sets the jitter ratio for retries (0.0 - 1.0).
func WithRetryJitter(jitter float64) Option {
	return func(c *ClientConfig) {
		c.RetryJitter = jitter
	}
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. Callers block until a token is available or their context ends.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ClientConfig) {
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
	}
}

// WithCircuitBreaker enables one circuit breaker per operation.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *ClientConfig) {
		c.CircuitBreaker = &cfg
	}
}

// WithCache sets the cache used for foundation model specs and shared IAM
// tokens.
//
// Example:
//
//	redisCache, _ := redis.New(redis.WithAddr("localhost:6379"))
//	wxai.WithCache(redisCache)
func WithCache(cache Cache) Option {
	return func(c *ClientConfig) {
		c.Cache = cache
	}
}

// WithModelSpecsTTL sets how long foundation model specs are cached.
func WithModelSpecsTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.ModelSpecsTTL = ttl
	}
}

// WithHeaders adds headers to every request. They cannot override the
// headers the client sets itself.
func WithHeaders(h http.Header) Option {
	return func(c *ClientConfig) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				c.Headers.Add(k, v)
			}
		}
	}
}

// WithStreamMaxLineSize caps a single SSE line. 0 disables the cap.
func WithStreamMaxLineSize(n int) Option {
	return func(c *ClientConfig) {
		c.StreamMaxLineSize = n
	}
}

// WithStreamReadSize sets how many bytes a stream requests per read.
func WithStreamReadSize(n int) Option {
	return func(c *ClientConfig) {
		c.StreamReadSize = n
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithMetrics registers Prometheus metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *ClientConfig) {
		c.MetricsRegisterer = reg
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *ClientConfig) {
		c.TracerProvider = tp
	}
}
