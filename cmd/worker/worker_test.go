package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"traceledger/pkg/logger"
)

type fakeRelay struct {
	mu       sync.Mutex
	batches  []int
	err      error
	calls    int
	dlqCalls int
	purged   []time.Duration
}

func (r *fakeRelay) ProcessBatch(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	if len(r.batches) == 0 {
		return 0, nil
	}
	n := r.batches[0]
	r.batches = r.batches[1:]
	return n, nil
}

func (r *fakeRelay) MoveToDLQ(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dlqCalls++
	return 1, nil
}

func (r *fakeRelay) PurgePublished(_ context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged = append(r.purged, olderThan)
	return 0, nil
}

func TestWorker_DrainsBacklog(t *testing.T) {
	relay := &fakeRelay{batches: []int{100, 100, 3}}
	w := NewWorker(relay, WorkerConfig{}, logger.Default())

	w.drain(context.Background())

	assert.Equal(t, 4, relay.calls)
	assert.Empty(t, relay.batches)
}

func TestWorker_DrainStopsOnError(t *testing.T) {
	relay := &fakeRelay{err: errors.New("connection refused")}
	w := NewWorker(relay, WorkerConfig{}, logger.Default())

	w.drain(context.Background())

	assert.Equal(t, 1, relay.calls)
}

func TestWorker_Cleanup(t *testing.T) {
	relay := &fakeRelay{}
	w := NewWorker(relay, WorkerConfig{Retention: 48 * time.Hour}, logger.Default())

	w.cleanup(context.Background())

	assert.Equal(t, 1, relay.dlqCalls)
	assert.Equal(t, []time.Duration{48 * time.Hour}, relay.purged)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	relay := &fakeRelay{batches: []int{5}}
	w := NewWorker(relay, WorkerConfig{PollInterval: 5 * time.Millisecond}, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return len(relay.batches) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
