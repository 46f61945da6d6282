// Package main is the entry point for the traceledger API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"traceledger/internal/app"
	"traceledger/internal/config"
	"traceledger/internal/domain/auth"
	v1 "traceledger/internal/infrastructure/http/v1"
	"traceledger/internal/infrastructure/metrics"
	"traceledger/pkg/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("TRACELEDGER_CONFIG"), "path to traceledger.yaml")
	flag.Parse()

	cfg, err := config.LoadWithValidation(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Server.Environment == config.EnvDevelopment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting traceledger server", "version", version, "storage", cfg.Storage.Backend)

	// --- Storage ---
	backend, err := app.OpenBackend(ctx, cfg.Storage)
	if err != nil {
		log.Fatalw("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
	}
	defer backend.Close()

	// --- Domain services ---
	promMetrics := metrics.New(nil)
	services := app.NewServices(backend, app.Options{
		Limits:   cfg.Numbering.Limits(),
		MaxBatch: cfg.Ledger.MaxBatch,
		Metrics:  promMetrics,
	})

	// --- Router ---
	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtCfg.Issuer = cfg.JWT.Issuer
	router := v1.NewRouter(v1.RouterConfig{
		Services:     services,
		Storage:      backend,
		Backend:      backend.Name,
		Version:      version,
		Logger:       log,
		JWTValidator: auth.NewJWTService(jwtCfg),
		Metrics:      promMetrics,
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Errorw("server failed", "error", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}
