// Package sequence provides the domain contract for bounded, scoped counters.
// Implementations live in the storage backends (postgres, sqlite, memory).
package sequence

import (
	"context"
	"fmt"
	"sort"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
)

// Request asks for Count consecutive values from one scope.
type Request struct {
	Scope entity.ScopeKey
	Count int64
	// Max is the inclusive upper bound for the scope.
	Max int64
}

// Range is an inclusive block of reserved values.
type Range struct {
	Scope entity.ScopeKey
	First int64
	Last  int64
}

// Len returns the number of values in the range.
func (r Range) Len() int64 { return r.Last - r.First + 1 }

// Store reserves counter values.
//
// Reserve is all-or-nothing across every request: either all scopes advance
// by their Count or none do. A scope that would pass its Max fails the whole
// call with a SCOPE_EXHAUSTED AppError and leaves every counter unchanged.
// Ranges are returned in request order. Values are never reissued; a caller
// that aborts after Reserve leaves a gap, never a duplicate.
//
// When ctx carries a transaction of the same backend, Reserve joins it, so
// counters roll back together with whatever else the caller writes.
type Store interface {
	Reserve(ctx context.Context, reqs []Request, actingIdentity string) ([]Range, error)

	// Get returns the counter state, or a NOT_FOUND AppError when the scope
	// has never issued a value.
	Get(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error)

	// AdvanceTo raises the counter so the next value issued is value+1.
	// It never moves a counter backwards. A counter already above maxValue
	// is rejected with a VALIDATION_ERROR. Used when migrating legacy labels.
	AdvanceTo(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error)
}

// Validate checks a reservation before it reaches storage.
func Validate(reqs []Request) error {
	if len(reqs) == 0 {
		return apperror.NewValidation("empty reservation")
	}
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		key := r.Scope.String()
		if _, dup := seen[key]; dup {
			return apperror.NewValidation("scope requested twice").WithDetail("scope", key)
		}
		seen[key] = struct{}{}
		if r.Count < 1 {
			return apperror.NewValidation("count must be positive").WithDetail("scope", key)
		}
		if r.Max < 1 {
			return apperror.NewValidation("max must be positive").WithDetail("scope", key)
		}
	}
	return nil
}

// LockOrder returns request indexes sorted by scope key. Backends that lock
// rows acquire them in this order so concurrent multi-key reservations cannot
// deadlock.
func LockOrder(reqs []Request) []int {
	idx := make([]int, len(reqs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return reqs[idx[a]].Scope.String() < reqs[idx[b]].Scope.String()
	})
	return idx
}

// Exhausted builds the SCOPE_EXHAUSTED error for req given the current value.
func Exhausted(req Request, current int64) error {
	return apperror.NewScopeExhausted(req.Scope.String(), current, req.Max, req.Count)
}

// ValidateAdvance checks AdvanceTo arguments.
func ValidateAdvance(scope entity.ScopeKey, value, maxValue int64) error {
	if value < 0 || value > maxValue {
		return apperror.NewValidation(fmt.Sprintf("value must be within 0..%d", maxValue)).
			WithDetail("scope", scope.String())
	}
	return nil
}
