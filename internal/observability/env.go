package observability

import (
	"os"
	"strconv"
	"strings"
)

// TracingConfigFromEnv overlays the standard OTEL_* variables and
// WXAI_TRACING_ENABLED onto base.
func TracingConfigFromEnv(base TracingConfig) TracingConfig {
	cfg := base
	cfg.Enabled = envBool("WXAI_TRACING_ENABLED", cfg.Enabled)
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")); v != "" {
		// http/protobuf and http/json both select the HTTP exporter.
		if strings.HasPrefix(v, "http") {
			cfg.Protocol = ProtocolHTTP
		} else {
			cfg.Protocol = ProtocolGRPC
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRate = rate
		}
	}
	cfg.Insecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Insecure)
	return cfg
}

func envBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if strings.EqualFold(value, "true") || value == "1" {
		return true
	}
	if strings.EqualFold(value, "false") || value == "0" {
		return false
	}
	return defaultValue
}
