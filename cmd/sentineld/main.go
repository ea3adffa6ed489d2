// Package main implements the sentineld daemon: an HTTP front for the
// admission control layer exposing the guard pipeline as middleware, plus
// health and metrics endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	sentinel "github.com/c360/sentinel"
	"github.com/c360/sentinel/config"
	"github.com/c360/sentinel/metric"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "sentineld"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting sentineld",
		"version", Version,
		"backend", cfg.ResolvedBackend(),
		"listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()

	layer, err := sentinel.New(ctx, cfg, sentinel.Deps{
		Logger:  logger,
		Metrics: registry,
	})
	if err != nil {
		return fmt.Errorf("assemble admission layer: %w", err)
	}
	defer func() {
		if err := layer.Close(); err != nil {
			slog.Warn("Layer shutdown reported an error", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler(layer))
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/", guarded(layer, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cliCfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// healthHandler refreshes provider circuit health before serving the
// aggregated status.
func healthHandler(layer *sentinel.Layer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		layer.RefreshProviderHealth(r.Context())
		layer.Health.Handler(appName).ServeHTTP(w, r)
	})
}

// guarded chains the layer's admission middleware in front of next in
// pipeline order: rate limiting first, then idempotent dedup, so replayed
// responses still count against the caller's window.
func guarded(layer *sentinel.Layer, next http.Handler) http.Handler {
	deduped := layer.Idempotency.Middleware(next)
	return layer.RateLimiter.Middleware(deduped)
}
