// Package ledger provides the append-only movement ledger.
package ledger

import (
	"context"
	"time"

	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
)

// Repository is the write side of the ledger store. There is no update or
// delete operation.
type Repository interface {
	// Insert appends rows and returns them with their store sequence set.
	Insert(ctx context.Context, events []entity.MovementEvent) ([]entity.MovementEvent, error)

	// GetByLineID returns one row or a NOT_FOUND AppError.
	GetByLineID(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error)

	// FindCompensation returns the row compensating lineID, or nil.
	FindCompensation(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error)

	// SaveRequest records an idempotency key. A key that already exists
	// fails with an IDEMPOTENCY_CONFLICT AppError.
	SaveRequest(ctx context.Context, rec IdempotencyRecord) error

	// GetRequest returns the record for key, or nil.
	GetRequest(ctx context.Context, key string) (*IdempotencyRecord, error)

	// ListByIdempotencyKey returns the rows written under key in append order.
	ListByIdempotencyKey(ctx context.Context, key string) ([]entity.MovementEvent, error)
}

// Reader is the query side used by stock and trace. Implementations never
// filter rows by any lifecycle flag.
type Reader interface {
	// Balance returns Σ IN − Σ OUT over the matching rows.
	Balance(ctx context.Context, q BalanceQuery) (types.Quantity, error)

	// ListMovements returns matching rows ordered by occurred_at, then sequence.
	ListMovements(ctx context.Context, f MovementFilter) ([]entity.MovementEvent, error)
}

// IdempotencyRecord ties a client key to the batch it produced.
type IdempotencyRecord struct {
	Key            string    `db:"idempotency_key"`
	Fingerprint    string    `db:"fingerprint"`
	ActingIdentity string    `db:"acting_identity"`
	LineCount      int       `db:"line_count"`
	CreatedAt      time.Time `db:"created_at"`
}

// BalanceQuery selects the rows folded into a balance.
type BalanceQuery struct {
	ProductID   string
	BatchNumber string
	AsOf        time.Time
	// Exclusive counts only rows strictly before AsOf.
	Exclusive bool
}

// MovementFilter selects ledger rows. Empty fields do not filter.
// From and To are inclusive bounds on occurred_at.
type MovementFilter struct {
	ProductID    string
	BatchNumber  string
	SerialNumber string
	From         *time.Time
	To           *time.Time
}

// IsEmpty reports whether the filter would match the whole ledger.
func (f MovementFilter) IsEmpty() bool {
	return f.ProductID == "" && f.BatchNumber == "" && f.SerialNumber == ""
}

// Matches applies the filter to a single row. Used by in-memory stores.
func (f MovementFilter) Matches(m *entity.MovementEvent) bool {
	if f.ProductID != "" && m.ProductID != f.ProductID {
		return false
	}
	if f.BatchNumber != "" && (m.BatchNumber == nil || *m.BatchNumber != f.BatchNumber) {
		return false
	}
	if f.SerialNumber != "" && (m.SerialNumber == nil || *m.SerialNumber != f.SerialNumber) {
		return false
	}
	if f.From != nil && m.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.OccurredAt.After(*f.To) {
		return false
	}
	return true
}

// Matches reports whether m is counted by the balance query.
func (q BalanceQuery) Matches(m *entity.MovementEvent) bool {
	if m.ProductID != q.ProductID {
		return false
	}
	if q.BatchNumber != "" && (m.BatchNumber == nil || *m.BatchNumber != q.BatchNumber) {
		return false
	}
	if q.Exclusive {
		return m.OccurredAt.Before(q.AsOf)
	}
	return !m.OccurredAt.After(q.AsOf)
}
