package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/id"
	"traceledger/internal/infrastructure/storage/postgres"
)

type fakeWriter struct {
	err  error
	sent []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.sent = append(w.sent, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func outboxMessage() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "batch",
		AggregateID:   "00110202512060001",
		EventType:     "identifier.batch_allocated",
		Payload:       []byte(`{"code":"00110202512060001"}`),
		CreatedAt:     time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_RoutesByAggregate(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(DefaultConfig(nil), w)

	require.NoError(t, p.Handle(context.Background(), outboxMessage()))
	require.Len(t, w.sent, 1)

	got := w.sent[0]
	assert.Equal(t, "traceledger.batch", got.Topic)
	assert.Equal(t, "00110202512060001", string(got.Key))
	assert.Equal(t, `{"code":"00110202512060001"}`, string(got.Value))

	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "identifier.batch_allocated", headers["event-type"])
}

func TestPublisher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	cfg := DefaultConfig(nil)
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	p := NewPublisherWithWriter(cfg, w)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := p.Handle(ctx, outboxMessage())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	w.err = nil
	err := p.Handle(ctx, outboxMessage())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, w.sent)
}
