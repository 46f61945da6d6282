package memory

import (
	"context"
	"sort"
	"sync"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
)

// LedgerStore is an append-only slice of movement rows. Rows past committed
// belong to the running write transaction and are only visible through its
// context.
type LedgerStore struct {
	mu            sync.RWMutex
	rows          []entity.MovementEvent
	committed     int
	byLine        map[id.ID]int
	compensatedBy map[id.ID]id.ID
	requests      map[string]ledger.IdempotencyRecord
	pending       map[string]bool
	seq           int64
}

// NewLedgerStore creates an empty ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		byLine:        make(map[id.ID]int),
		compensatedBy: make(map[id.ID]id.ID),
		requests:      make(map[string]ledger.IdempotencyRecord),
		pending:       make(map[string]bool),
	}
}

// visible returns how many rows the caller in ctx may read. s.mu must be held.
func (s *LedgerStore) visible(ctx context.Context) int {
	if inTx(ctx) {
		return len(s.rows)
	}
	return s.committed
}

// Insert implements ledger.Repository.
func (s *LedgerStore) Insert(ctx context.Context, events []entity.MovementEvent) ([]entity.MovementEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, ok := s.byLine[e.LineID]; ok {
			return nil, apperror.NewDuplicate("movement", "line_id", e.LineID.String())
		}
		if e.CompensatesLine != nil {
			if _, ok := s.compensatedBy[*e.CompensatesLine]; ok {
				return nil, apperror.NewConflict("movement already compensated").
					WithDetail("lineId", e.CompensatesLine.String())
			}
		}
	}

	n, seq := len(s.rows), s.seq
	out := make([]entity.MovementEvent, len(events))
	for i, e := range events {
		s.seq++
		e.Sequence = s.seq
		s.byLine[e.LineID] = len(s.rows)
		if e.CompensatesLine != nil {
			s.compensatedBy[*e.CompensatesLine] = e.LineID
		}
		s.rows = append(s.rows, e)
		out[i] = e
	}
	end := len(s.rows)

	onCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if end > s.committed {
			s.committed = end
		}
	})
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range s.rows[n:] {
			delete(s.byLine, e.LineID)
			if e.CompensatesLine != nil {
				delete(s.compensatedBy, *e.CompensatesLine)
			}
		}
		s.rows = s.rows[:n]
		s.seq = seq
	})
	return out, nil
}

// GetByLineID implements ledger.Repository.
func (s *LedgerStore) GetByLineID(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byLine[lineID]
	if !ok || i >= s.visible(ctx) {
		return nil, apperror.NewNotFound("movement", lineID.String())
	}
	row := s.rows[i]
	return &row, nil
}

// FindCompensation implements ledger.Repository.
func (s *LedgerStore) FindCompensation(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.compensatedBy[lineID]
	if !ok || s.byLine[c] >= s.visible(ctx) {
		return nil, nil
	}
	row := s.rows[s.byLine[c]]
	return &row, nil
}

// SaveRequest implements ledger.Repository.
func (s *LedgerStore) SaveRequest(ctx context.Context, rec ledger.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[rec.Key]; ok {
		return apperror.NewIdempotencyConflict(rec.Key)
	}
	s.requests[rec.Key] = rec
	s.pending[rec.Key] = true
	onCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, rec.Key)
	})
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.requests, rec.Key)
		delete(s.pending, rec.Key)
	})
	return nil
}

// GetRequest implements ledger.Repository.
func (s *LedgerStore) GetRequest(ctx context.Context, key string) (*ledger.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.requests[key]
	if !ok || (s.pending[key] && !inTx(ctx)) {
		return nil, nil
	}
	return &rec, nil
}

// ListByIdempotencyKey implements ledger.Repository.
func (s *LedgerStore) ListByIdempotencyKey(ctx context.Context, key string) ([]entity.MovementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.MovementEvent
	for _, e := range s.rows[:s.visible(ctx)] {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			out = append(out, e)
		}
	}
	return out, nil
}

// Balance implements ledger.Reader.
func (s *LedgerStore) Balance(ctx context.Context, q ledger.BalanceQuery) (types.Quantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total types.Quantity
	for i := range s.rows[:s.visible(ctx)] {
		if q.Matches(&s.rows[i]) {
			total += s.rows[i].SignedQuantity()
		}
	}
	return total, nil
}

// ListMovements implements ledger.Reader.
func (s *LedgerStore) ListMovements(ctx context.Context, f ledger.MovementFilter) ([]entity.MovementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.MovementEvent
	for i := range s.rows[:s.visible(ctx)] {
		if f.Matches(&s.rows[i]) {
			out = append(out, s.rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

var (
	_ ledger.Repository = (*LedgerStore)(nil)
	_ ledger.Reader     = (*LedgerStore)(nil)
)
