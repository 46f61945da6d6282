// Package kafka relays outbox messages to Kafka topics behind a circuit
// breaker, so a broker outage backs off instead of hammering retries.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"traceledger/internal/infrastructure/storage/postgres"
	"traceledger/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects deliveries.
var ErrCircuitOpen = errors.New("kafka circuit breaker is open")

// Config holds producer and breaker settings.
type Config struct {
	Brokers      []string
	TopicPrefix  string
	BatchTimeout time.Duration
	RequiredAcks int // 0: none, 1: leader, -1: all replicas

	BreakerFailures uint32        // consecutive failures that trip the breaker
	BreakerTimeout  time.Duration // open -> half-open delay
}

// DefaultConfig returns production defaults for brokers.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:         brokers,
		TopicPrefix:     "traceledger.",
		BatchTimeout:    10 * time.Millisecond,
		RequiredAcks:    -1,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements postgres.OutboxHandler.
type Publisher struct {
	writer MessageWriter
	prefix string
	cb     *gobreaker.CircuitBreaker
}

var _ postgres.OutboxHandler = (*Publisher)(nil)

// NewPublisher creates a publisher writing through a kafka.Writer.
func NewPublisher(cfg Config) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: false,
	}
	return NewPublisherWithWriter(cfg, w)
}

// NewPublisherWithWriter creates a publisher around any MessageWriter.
func NewPublisherWithWriter(cfg Config, w MessageWriter) *Publisher {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "kafka-outbox",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Publisher{writer: w, prefix: cfg.TopicPrefix, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Handle implements postgres.OutboxHandler. Messages are keyed by aggregate
// id so every event of one batch or serial lands on one partition in order.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	km := kafka.Message{
		Topic: p.prefix + msg.AggregateType,
		Key:   []byte(msg.AggregateID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(msg.ID.String())},
			{Key: "event-type", Value: []byte(msg.EventType)},
			{Key: "occurred-at", Value: []byte(msg.CreatedAt.UTC().Format(time.RFC3339Nano))},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: msg.CreatedAt,
	}

	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(ctx, km)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrCircuitOpen
	case err != nil:
		return fmt.Errorf("publish %s to %s: %w", msg.EventType, km.Topic, err)
	}
	return nil
}

// State reports the breaker state for health checks.
func (p *Publisher) State() gobreaker.State {
	return p.cb.State()
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
