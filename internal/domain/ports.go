// Package domain provides the ports shared by the domain services: event
// publishing, audit logging and metrics. Storage backends and the metrics
// package implement them.
package domain

import (
	"context"
)

// Event types published through the outbox.
const (
	EventBatchAllocated     = "identifier.batch_allocated"
	EventSerialsAllocated   = "identifier.serials_allocated"
	EventSerialStatusChange = "serial.status_changed"
	EventMovementsAppended  = "ledger.movements_appended"
	EventMovementCompensate = "ledger.movement_compensated"
)

// DomainEvent represents an event to be published via outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// EventPublisher writes events atomically with the business change.
// Implementations join the transaction carried by ctx.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// AuditEntry describes one audited operation.
type AuditEntry struct {
	EntityType     string
	EntityID       string
	Action         string
	ActingIdentity string
	Changes        map[string]any
}

// AuditLogger records audit entries in the caller's transaction.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Metrics receives domain counters.
type Metrics interface {
	IdentifiersIssued(kind string, n int)
	ScopeExhausted(purpose string)
	IntegrityFailure(kind string)
	MovementsAppended(transactionType string, n int)
	StatusTransition(from, to string)
}

// Nop implements EventPublisher, AuditLogger and Metrics by doing nothing.
type Nop struct{}

func (Nop) Publish(context.Context, DomainEvent) error { return nil }
func (Nop) Record(context.Context, AuditEntry) error   { return nil }
func (Nop) IdentifiersIssued(string, int)              {}
func (Nop) ScopeExhausted(string)                      {}
func (Nop) IntegrityFailure(string)                    {}
func (Nop) MovementsAppended(string, int)              {}
func (Nop) StatusTransition(string, string)            {}

var (
	_ EventPublisher = Nop{}
	_ AuditLogger    = Nop{}
	_ Metrics        = Nop{}
)
