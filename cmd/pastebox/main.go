package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pastebox/internal/config"
	"pastebox/internal/httpserver"
	"pastebox/internal/id"
	"pastebox/internal/lifecycle"
	"pastebox/internal/metrics"
)

func main() {
	getenv, err := config.Environ(os.Getenv, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	cfg, err := config.Load(os.Args[1:], getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(ctx, 30*time.Second)
	store, err := openStore(openCtx, cfg, logger)
	cancelOpen()
	if err != nil {
		logger.Error("failed opening data store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	instrumented := metrics.InstrumentStore(store, m)

	engine, err := lifecycle.New(lifecycle.Config{
		Store:       instrumented,
		IDGenerator: id.New(id.DefaultLength),
		OpTimeout:   cfg.StoreTimeout,
	})
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	srv, err := httpserver.New(httpserver.Config{
		Engine:     engine,
		MaxBytes:   cfg.MaxBytes,
		TrustProxy: cfg.BehindProxy,
		BaseURL:    cfg.BaseURL,
		TestMode:   cfg.TestMode,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}
	if cfg.TestMode {
		logger.Warn("test mode enabled, x-test-now-ms overrides the clock")
	}

	httpserver.StartJanitor(ctx, instrumented, janitorInterval(cfg), logger, m)

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// janitorInterval turns the sweeper off in test mode, where request clocks
// may disagree with the wall clock it sweeps on.
func janitorInterval(cfg *config.Config) time.Duration {
	if cfg.TestMode {
		return 0
	}
	return cfg.JanitorInterval
}
