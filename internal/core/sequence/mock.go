package sequence

import (
	"context"

	"traceledger/internal/core/entity"
)

// MockStore is a test implementation of Store.
type MockStore struct {
	ReserveFunc   func(ctx context.Context, reqs []Request, actingIdentity string) ([]Range, error)
	GetFunc       func(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error)
	AdvanceToFunc func(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error)
}

// Reserve implements Store. Without ReserveFunc every scope starts at 1.
func (m *MockStore) Reserve(ctx context.Context, reqs []Request, actingIdentity string) ([]Range, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, reqs, actingIdentity)
	}
	out := make([]Range, len(reqs))
	for i, r := range reqs {
		out[i] = Range{Scope: r.Scope, First: 1, Last: r.Count}
	}
	return out, nil
}

// Get implements Store.
func (m *MockStore) Get(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, scope)
	}
	return &entity.SequenceCounter{ScopeKey: scope.String(), Purpose: scope.Purpose}, nil
}

// AdvanceTo implements Store.
func (m *MockStore) AdvanceTo(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error) {
	if m.AdvanceToFunc != nil {
		return m.AdvanceToFunc(ctx, scope, value, maxValue, actingIdentity)
	}
	return &entity.SequenceCounter{ScopeKey: scope.String(), CurrentValue: value, MaxValue: maxValue}, nil
}

var _ Store = (*MockStore)(nil)
