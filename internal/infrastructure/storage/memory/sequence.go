package memory

import (
	"context"
	"sync"
	"time"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
)

// SequenceStore keeps counters in a map guarded by one mutex, which makes
// every multi-key reservation a single critical section.
type SequenceStore struct {
	mu       sync.Mutex
	counters map[string]*entity.SequenceCounter
	now      func() time.Time
}

// NewSequenceStore creates an empty counter store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{
		counters: make(map[string]*entity.SequenceCounter),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve implements sequence.Store.
func (s *SequenceStore) Reserve(ctx context.Context, reqs []sequence.Request, actingIdentity string) ([]sequence.Range, error) {
	if err := sequence.Validate(reqs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reqs {
		var current int64
		if c, ok := s.counters[r.Scope.String()]; ok {
			current = c.CurrentValue
		}
		if current+r.Count > r.Max {
			return nil, sequence.Exhausted(r, current)
		}
	}

	now := s.now()
	out := make([]sequence.Range, len(reqs))
	for i, r := range reqs {
		key := r.Scope.String()
		c, ok := s.counters[key]
		if !ok {
			c = newCounter(r.Scope, now)
			s.counters[key] = c
		}
		prev := *c
		c.CurrentValue += r.Count
		c.MaxValue = r.Max
		c.LastGeneratedBy = actingIdentity
		c.LastGeneratedAt = now
		out[i] = sequence.Range{Scope: r.Scope, First: prev.CurrentValue + 1, Last: c.CurrentValue}

		onRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !ok {
				delete(s.counters, key)
				return
			}
			*s.counters[key] = prev
		})
	}
	return out, nil
}

// Get implements sequence.Store.
func (s *SequenceStore) Get(_ context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[scope.String()]
	if !ok {
		return nil, apperror.NewNotFound("sequence counter", scope.String())
	}
	cp := *c
	return &cp, nil
}

// AdvanceTo implements sequence.Store.
func (s *SequenceStore) AdvanceTo(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error) {
	if err := sequence.ValidateAdvance(scope, value, maxValue); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.String()
	now := s.now()
	c, ok := s.counters[key]
	if !ok {
		c = newCounter(scope, now)
		s.counters[key] = c
	}
	if c.CurrentValue > maxValue {
		return nil, apperror.NewValidation("counter is already beyond the bound").
			WithDetail("scope", key).
			WithDetail("current", c.CurrentValue).
			WithDetail("max", maxValue)
	}
	prev := *c
	if value > c.CurrentValue {
		c.CurrentValue = value
		c.LastGeneratedBy = actingIdentity
		c.LastGeneratedAt = now
	}
	c.MaxValue = maxValue

	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !ok {
			delete(s.counters, key)
			return
		}
		*s.counters[key] = prev
	})

	cp := *c
	return &cp, nil
}

func newCounter(scope entity.ScopeKey, now time.Time) *entity.SequenceCounter {
	return &entity.SequenceCounter{
		ScopeKey:      scope.String(),
		Purpose:       scope.Purpose,
		SiteID:        scope.SiteID,
		BatchType:     string(scope.BatchType),
		BatchSequence: scope.BatchSequence,
		ScopeDate:     scope.Date,
		CreatedAt:     now,
	}
}

var _ sequence.Store = (*SequenceStore)(nil)
