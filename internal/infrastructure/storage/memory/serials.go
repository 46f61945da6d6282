package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/domain/serials"
	"traceledger/pkg/labelcode"
)

// SerialStore is an in-memory serials.Repository.
type SerialStore struct {
	mu      sync.RWMutex
	byFull  map[string]*entity.SerialNumber
	byShort map[string]string
	history map[string][]entity.StatusTransition
}

// NewSerialStore creates an empty serial registry store.
func NewSerialStore() *SerialStore {
	return &SerialStore{
		byFull:  make(map[string]*entity.SerialNumber),
		byShort: make(map[string]string),
		history: make(map[string][]entity.StatusTransition),
	}
}

// CreateBatch implements serials.Repository.
func (s *SerialStore) CreateBatch(ctx context.Context, list []entity.SerialNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dups []string
	for _, sn := range list {
		if _, ok := s.byFull[sn.FullCode]; ok {
			dups = append(dups, sn.FullCode)
		}
		if _, ok := s.byShort[sn.ShortCode]; ok {
			dups = append(dups, sn.ShortCode)
		}
	}
	if len(dups) > 0 {
		return apperror.NewDuplicateIdentifier("serial", dups)
	}

	for i := range list {
		sn := list[i]
		s.byFull[sn.FullCode] = &sn
		s.byShort[sn.ShortCode] = sn.FullCode
	}
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, sn := range list {
			delete(s.byFull, sn.FullCode)
			delete(s.byShort, sn.ShortCode)
		}
	})
	return nil
}

// FindExisting implements serials.Repository.
func (s *SerialStore) FindExisting(_ context.Context, fullCodes, shortCodes []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, c := range fullCodes {
		if _, ok := s.byFull[c]; ok {
			out = append(out, c)
		}
	}
	for _, c := range shortCodes {
		if _, ok := s.byShort[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindByCode implements serials.Repository.
func (s *SerialStore) FindByCode(_ context.Context, code string) (*entity.SerialNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full := code
	if len(code) == labelcode.SerialShortLen {
		full = s.byShort[code]
	}
	sn, ok := s.byFull[full]
	if !ok {
		return nil, apperror.NewNotFound("serial number", code)
	}
	cp := *sn
	return &cp, nil
}

// UpdateStatus implements serials.Repository.
func (s *SerialStore) UpdateStatus(ctx context.Context, fullCode string, from, to entity.SerialStatus, actingIdentity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.byFull[fullCode]
	if !ok {
		return apperror.NewNotFound("serial number", fullCode)
	}
	if sn.Status != from {
		return apperror.NewConcurrentModification("serial number", fullCode)
	}
	prev := *sn
	sn.Status = to
	sn.StatusChangedBy = &actingIdentity
	sn.StatusChangedAt = &at

	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*s.byFull[fullCode] = prev
	})
	return nil
}

// AppendTransition implements serials.Repository.
func (s *SerialStore) AppendTransition(ctx context.Context, t entity.StatusTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history[t.FullCode])
	s.history[t.FullCode] = append(s.history[t.FullCode], t)
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.history[t.FullCode] = s.history[t.FullCode][:n]
	})
	return nil
}

// ListTransitions implements serials.Repository.
func (s *SerialStore) ListTransitions(_ context.Context, fullCode string) ([]entity.StatusTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]entity.StatusTransition(nil), s.history[fullCode]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransitionedAt.Before(out[j].TransitionedAt) })
	return out, nil
}

// ListByBatch implements serials.Repository.
func (s *SerialStore) ListByBatch(_ context.Context, batchNumber string) ([]entity.SerialNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.SerialNumber
	for _, sn := range s.byFull {
		if sn.BatchNumber == batchNumber {
			out = append(out, *sn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitSequence < out[j].UnitSequence })
	return out, nil
}

var _ serials.Repository = (*SerialStore)(nil)
