package memory

import (
	"context"
	"sync"

	"traceledger/internal/domain"
)

// EventLog collects published events and audit entries. Entries written in a
// failed transaction are dropped with it.
type EventLog struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	audit  []domain.AuditEntry
}

// NewEventLog creates an empty collector.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Publish implements domain.EventPublisher.
func (l *EventLog) Publish(ctx context.Context, event domain.DomainEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.events)
	l.events = append(l.events, event)
	onRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = l.events[:n]
	})
	return nil
}

// Record implements domain.AuditLogger.
func (l *EventLog) Record(ctx context.Context, entry domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.audit)
	l.audit = append(l.audit, entry)
	onRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.audit = l.audit[:n]
	})
	return nil
}

// Events returns a copy of the published events.
func (l *EventLog) Events() []domain.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.DomainEvent(nil), l.events...)
}

// Audit returns a copy of the recorded audit entries.
func (l *EventLog) Audit() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditEntry(nil), l.audit...)
}

var (
	_ domain.EventPublisher = (*EventLog)(nil)
	_ domain.AuditLogger    = (*EventLog)(nil)
)
