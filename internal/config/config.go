// Package config loads the wxai command configuration from YAML with
// environment expansion, and hot-reloads it with fsnotify.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/wxai/caches"
	"github.com/blueberrycongee/wxai/internal/observability"
	"github.com/blueberrycongee/wxai/pkg/cos"
)

// Config represents the complete command configuration.
type Config struct {
	Watsonx    WatsonxConfig               `yaml:"watsonx"`
	Retry      RetryConfig                 `yaml:"retry"`
	RateLimit  RateLimitConfig             `yaml:"rate_limit"`
	Breaker    BreakerConfig               `yaml:"circuit_breaker"`
	Cache      CacheConfig                 `yaml:"cache"`
	Generation GenerationConfig            `yaml:"generation"`
	Logging    LoggingConfig               `yaml:"logging"`
	Metrics    MetricsConfig               `yaml:"metrics"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	COS        COSConfig                   `yaml:"cos"`
}

// WatsonxConfig contains service endpoint and credential settings.
type WatsonxConfig struct {
	URL         string        `yaml:"url"`
	APIVersion  string        `yaml:"api_version"`
	APIKey      string        `yaml:"api_key"`
	BearerToken string        `yaml:"bearer_token"`
	IAMURL      string        `yaml:"iam_url"`
	ProjectID   string        `yaml:"project_id"`
	SpaceID     string        `yaml:"space_id"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetryConfig controls retries of failed attempts.
type RetryConfig struct {
	Count      int           `yaml:"count"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Jitter     float64       `yaml:"jitter"`
}

// RateLimitConfig defines client-side rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// BreakerConfig configures the per-operation circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// CacheConfig selects the backend shared by IAM tokens and model listings.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ModelSpecsTTL time.Duration `yaml:"model_specs_ttl"`
	caches.Config `yaml:",inline"`
}

// GenerationConfig holds request defaults the command applies. These are
// the settings picked up on hot reload.
type GenerationConfig struct {
	ModelID        string   `yaml:"model_id"`
	ChatModelID    string   `yaml:"chat_model_id"`
	DeploymentID   string   `yaml:"deployment_id"`
	DecodingMethod string   `yaml:"decoding_method"` // greedy, sample
	MaxNewTokens   int      `yaml:"max_new_tokens"`
	MinNewTokens   int      `yaml:"min_new_tokens"`
	Temperature    float64  `yaml:"temperature"`
	TopP           float64  `yaml:"top_p"`
	TopK           int      `yaml:"top_k"`
	StopSequences  []string `yaml:"stop_sequences"`
	SystemPrompt   string   `yaml:"system_prompt"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// COSConfig configures document staging for text extraction.
type COSConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathPrefix      string `yaml:"path_prefix"`
	Bucket          string `yaml:"bucket"`
	ConnectionID    string `yaml:"connection_id"`
}

// Client converts the section into a cos.Config.
func (c COSConfig) Client() cos.Config {
	return cos.Config{
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathPrefix:      c.PathPrefix,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Watsonx: WatsonxConfig{
			URL:        "https://us-south.ml.cloud.ibm.com",
			APIVersion: "2024-05-01",
			Timeout:    2 * time.Minute,
		},
		Retry: RetryConfig{
			Count:      3,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
			Jitter:     0.2,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 8,
			Burst:             8,
		},
		Breaker: BreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:       false,
			ModelSpecsTTL: 10 * time.Minute,
			Config: caches.Config{
				Type:   caches.TypeLocal,
				Memory: caches.DefaultMemoryConfig(),
				Redis:  caches.DefaultRedisConfig(),
			},
		},
		Generation: GenerationConfig{
			ModelID:        "ibm/granite-13b-instruct-v2",
			ChatModelID:    "ibm/granite-3-8b-instruct",
			DecodingMethod: "greedy",
			MaxNewTokens:   200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Tracing: observability.DefaultTracingConfig(),
		COS: COSConfig{
			Region: cos.DefaultRegion,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it over the
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Watsonx.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("watsonx.url %q is not an absolute URL", c.Watsonx.URL)
	}
	if c.Watsonx.APIKey == "" && c.Watsonx.BearerToken == "" {
		return fmt.Errorf("watsonx.api_key or watsonx.bearer_token is required")
	}
	if c.Watsonx.ProjectID != "" && c.Watsonx.SpaceID != "" {
		return fmt.Errorf("watsonx.project_id and watsonx.space_id are mutually exclusive")
	}
	if c.Watsonx.Timeout < 0 {
		return fmt.Errorf("watsonx.timeout cannot be negative")
	}

	if c.Retry.Count < 0 {
		return fmt.Errorf("retry.count cannot be negative")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be between 0 and 1")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive")
		}
	}

	if c.Breaker.Enabled && c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
	}

	if c.Cache.Enabled {
		switch c.Cache.Type {
		case "", caches.TypeLocal, caches.TypeRedis:
		default:
			return fmt.Errorf("cache.type %q is not supported", c.Cache.Type)
		}
	}
	if c.Cache.ModelSpecsTTL < 0 {
		return fmt.Errorf("cache.model_specs_ttl cannot be negative")
	}

	if err := c.Generation.Validate(); err != nil {
		return err
	}

	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate checks generation defaults.
func (g *GenerationConfig) Validate() error {
	switch g.DecodingMethod {
	case "", "greedy", "sample":
	default:
		return fmt.Errorf("generation.decoding_method %q must be greedy or sample", g.DecodingMethod)
	}
	if g.MaxNewTokens < 0 || g.MinNewTokens < 0 {
		return fmt.Errorf("generation token limits cannot be negative")
	}
	if g.MaxNewTokens > 0 && g.MinNewTokens > g.MaxNewTokens {
		return fmt.Errorf("generation.min_new_tokens exceeds max_new_tokens")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2")
	}
	if g.TopP < 0 || g.TopP > 1 {
		return fmt.Errorf("generation.top_p must be between 0 and 1")
	}
	if g.TopK < 0 {
		return fmt.Errorf("generation.top_k cannot be negative")
	}
	return nil
}

// Warning codes returned by Warnings.
const (
	WarningStaticBearerToken = "static_bearer_token"
	WarningRedisWithoutTLS   = "redis_without_tls"
	WarningTracingNoSamples  = "tracing_no_samples"
)

// Warning is a non-fatal configuration finding.
type Warning struct {
	Code    string
	Message string
}

// Warnings reports settings that are valid but likely unintended.
func (c *Config) Warnings() []Warning {
	var out []Warning
	if c.Watsonx.BearerToken != "" && c.Watsonx.APIKey == "" {
		out = append(out, Warning{
			Code:    WarningStaticBearerToken,
			Message: "watsonx.bearer_token is never refreshed; requests fail once it expires",
		})
	}
	if c.Cache.Enabled && c.Cache.Type == caches.TypeRedis && !c.Cache.Redis.TLSEnabled {
		out = append(out, Warning{
			Code:    WarningRedisWithoutTLS,
			Message: "IAM tokens are stored in redis without TLS",
		})
	}
	if c.Tracing.Enabled && c.Tracing.SampleRate == 0 {
		out = append(out, Warning{
			Code:    WarningTracingNoSamples,
			Message: "tracing is enabled with sample_rate 0",
		})
	}
	return out
}
