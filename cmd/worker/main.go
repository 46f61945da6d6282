// Package main is the entry point for the outbox relay worker. It drains
// sys_outbox into Kafka, parks poison messages in the DLQ and purges
// published rows past retention.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"traceledger/internal/app"
	"traceledger/internal/config"
	"traceledger/internal/infrastructure/messaging/kafka"
	"traceledger/internal/infrastructure/storage/postgres"
	"traceledger/pkg/logger"
)

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

	if cfg.Storage.Backend != config.BackendPostgres {
		log.Fatalw("outbox relay requires the postgres backend", "backend", cfg.Storage.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	backend, err := app.OpenPostgres(ctx, cfg.Storage.Postgres)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer backend.Close()

	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers)
	kcfg.TopicPrefix = cfg.Kafka.TopicPrefix
	kcfg.BreakerFailures = cfg.Kafka.BreakerFailures
	kcfg.BreakerTimeout = cfg.Kafka.BreakerTimeout
	publisher := kafka.NewPublisher(kcfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnw("close kafka writer", "error", err)
		}
	}()

	relay := postgres.NewOutboxRelay(backend.Postgres, cfg.Outbox.BatchSize, publisher)
	worker := NewWorker(relay, WorkerConfig{
		PollInterval: cfg.Outbox.PollInterval,
		Retention:    cfg.Outbox.Retention,
	}, log)

	log.Infow("starting outbox worker", "brokers", cfg.Kafka.Brokers, "batch_size", cfg.Outbox.BatchSize)
	worker.Run(ctx)
	log.Info("worker stopped")
}
