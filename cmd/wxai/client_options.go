package main

import (
	"fmt"
	"log/slog"

	"github.com/blueberrycongee/wxai"
	"github.com/blueberrycongee/wxai/caches"
	"github.com/blueberrycongee/wxai/internal/config"
	"github.com/blueberrycongee/wxai/internal/resilience"
)

// clientOptions translates the configuration into client options.
func clientOptions(cfg *config.Config, logger *slog.Logger) ([]wxai.Option, error) {
	wx := cfg.Watsonx
	opts := []wxai.Option{
		wxai.WithLogger(logger),
		wxai.WithBaseURL(wx.URL),
		wxai.WithRetry(cfg.Retry.Count, cfg.Retry.Backoff),
		wxai.WithRetryMaxBackoff(cfg.Retry.MaxBackoff),
		wxai.WithRetryJitter(cfg.Retry.Jitter),
	}
	if wx.APIVersion != "" {
		opts = append(opts, wxai.WithAPIVersion(wx.APIVersion))
	}
	if wx.Timeout > 0 {
		opts = append(opts, wxai.WithTimeout(wx.Timeout))
	}

	switch {
	case wx.APIKey != "":
		opts = append(opts, wxai.WithAPIKey(wx.APIKey))
		if wx.IAMURL != "" {
			opts = append(opts, wxai.WithIAMURL(wx.IAMURL))
		}
	case wx.BearerToken != "":
		opts = append(opts, wxai.WithBearerToken(wx.BearerToken))
	}

	switch {
	case wx.ProjectID != "":
		opts = append(opts, wxai.WithProjectID(wx.ProjectID))
	case wx.SpaceID != "":
		opts = append(opts, wxai.WithSpaceID(wx.SpaceID))
	}

	if cfg.RateLimit.Enabled {
		opts = append(opts, wxai.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	if cfg.Breaker.Enabled {
		cbCfg := resilience.DefaultCircuitBreakerConfig()
		cbCfg.FailureThreshold = cfg.Breaker.FailureThreshold
		if cfg.Breaker.Timeout > 0 {
			cbCfg.Timeout = cfg.Breaker.Timeout
		}
		opts = append(opts, wxai.WithCircuitBreaker(cbCfg))
	}

	cacheOpts, err := buildCacheOptions(&cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	return append(opts, cacheOpts...), nil
}

func buildCacheOptions(cfg *config.CacheConfig, logger *slog.Logger) ([]wxai.Option, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cacheInstance, err := caches.New(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	opts := []wxai.Option{wxai.WithCache(cacheInstance)}
	if cfg.ModelSpecsTTL > 0 {
		opts = append(opts, wxai.WithModelSpecsTTL(cfg.ModelSpecsTTL))
	}

	cacheType := cfg.Type
	if cacheType == "" {
		cacheType = caches.TypeLocal
	}
	logger.Info("cache enabled", "type", cacheType)
	return opts, nil
}
