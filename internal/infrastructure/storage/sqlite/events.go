package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"traceledger/internal/core/id"
	"traceledger/internal/domain"
)

// EventStore writes audit rows and outbox events in the caller's
// transaction. Edge installs have no broker; the outbox is drained by
// copying the file or by a later sync job.
type EventStore struct {
	txm *TxManager
	now func() time.Time
}

var (
	_ domain.EventPublisher = (*EventStore)(nil)
	_ domain.AuditLogger    = (*EventStore)(nil)
)

// NewEventStore creates an event store.
func NewEventStore(txm *TxManager) *EventStore {
	return &EventStore{txm: txm, now: func() time.Time { return time.Now().UTC() }}
}

// Publish implements domain.EventPublisher.
func (s *EventStore) Publish(ctx context.Context, event domain.DomainEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).ExecContext(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
	`, id.New().String(), event.AggregateType, event.AggregateID, event.EventType, string(payload), micros(s.now()))
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// Record implements domain.AuditLogger.
func (s *EventStore) Record(ctx context.Context, entry domain.AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).ExecContext(ctx, `
		INSERT INTO sys_audit (id, entity_type, entity_id, action, acting_identity, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.New().String(), entry.EntityType, entry.EntityID, entry.Action, entry.ActingIdentity, string(changes), micros(s.now()))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// PendingEvents returns how many outbox rows are still pending.
func (s *EventStore) PendingEvents(ctx context.Context) (int, error) {
	var n int
	err := s.txm.GetQuerier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM sys_outbox WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}
