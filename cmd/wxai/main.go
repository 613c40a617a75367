// Package main is the wxai command line client for watsonx.ai.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/wxai"
	"github.com/blueberrycongee/wxai/internal/config"
	"github.com/blueberrycongee/wxai/internal/observability"
)

const usage = `usage: wxai [flags] <command> [args]

commands:
  generate <prompt>   stream generated text
  chat [message]      stream a chat reply; with -watch, read messages from stdin
  models [model_id]   list foundation models or show one
  extract <file>      stage a document in COS and extract its text

flags:
`

func main() {
	configPath := flag.String("config", "wxai.yaml", "path to configuration file")
	watch := flag.Bool("watch", false, "keep a chat session open and reload defaults when the config changes")
	raw := flag.Bool("raw", true, "print raw event data instead of decoded events")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *watch, *raw, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "wxai:", err)
		os.Exit(1)
	}
}

func run(configPath string, watch, raw bool, args []string) error {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfgManager, err := config.NewManager(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer cfgManager.Close()

	cfg := cfgManager.Get()

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	// Ctrl-C cancels ctx, which aborts whatever stream is open.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		server := startMetricsServer(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return err
	}
	if reg != nil {
		opts = append(opts, wxai.WithMetrics(reg))
	}
	opts = append(opts, wxai.WithTracerProvider(tp.Provider()))

	client, err := wxai.New(opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	sess := newSession(client, cfg, logger, os.Stdout)
	sess.raw = raw

	if watch {
		cfgManager.OnChange(sess.Reload)
		if err := cfgManager.Watch(ctx); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "generate":
		err = sess.Generate(ctx, strings.Join(rest, " "))
	case "chat":
		if watch {
			err = sess.ChatREPL(ctx, os.Stdin)
		} else {
			err = sess.Chat(ctx, strings.Join(rest, " "))
		}
	case "models":
		var id string
		if len(rest) > 0 {
			id = rest[0]
		}
		err = sess.Models(ctx, id)
	case "extract":
		if len(rest) != 1 {
			return errors.New("extract takes exactly one file")
		}
		err = sess.Extract(ctx, cfg.COS, rest[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, wxai.ErrStreamAborted) || errors.Is(err, context.Canceled) {
		logger.Info("interrupted")
		return nil
	}
	return err
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (*slog.Logger, error) {
	level, err := observability.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     out,
		JSONFormat: strings.EqualFold(cfg.Format, "json"),
	}, observability.NewRedactor()), nil
}

func startMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Addr, "path", path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}
