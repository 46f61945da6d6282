package main

import (
	"context"
	"time"

	"traceledger/pkg/logger"
)

// Relay is the outbox surface the worker drives.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// WorkerConfig holds loop timings.
type WorkerConfig struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// Worker polls the outbox until its context is cancelled.
type Worker struct {
	relay Relay
	cfg   WorkerConfig
	log   *logger.Logger
}

// NewWorker creates an outbox worker.
func NewWorker(relay Relay, cfg WorkerConfig, log *logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Worker{relay: relay, cfg: cfg, log: log.WithComponent("outbox-worker")}
}

// Run blocks until ctx is done. A full batch is followed immediately by the
// next poll so a backlog drains without waiting for the ticker.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Warnw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("move to dlq failed", "error", err)
	} else if moved > 0 {
		w.log.Warnw("moved failed outbox messages to dlq", "count", moved)
	}

	purged, err := w.relay.PurgePublished(ctx, w.cfg.Retention)
	if err != nil {
		w.log.Errorw("purge published failed", "error", err)
	} else if purged > 0 {
		w.log.Infow("purged published outbox messages", "count", purged)
	}
}
