package serials

import (
	"context"
	"strings"
	"time"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/tx"
	"traceledger/internal/domain"
	"traceledger/pkg/labelcode"
	"traceledger/pkg/logger"
)

// Registry holds the master record of every issued serial and its lifecycle.
type Registry struct {
	repo    Repository
	txm     tx.Manager
	events  domain.EventPublisher
	metrics domain.Metrics
	now     func() time.Time
}

// NewRegistry creates a serial registry. events and metrics may be nil.
func NewRegistry(repo Repository, txm tx.Manager, events domain.EventPublisher, metrics domain.Metrics) *Registry {
	if events == nil {
		events = domain.Nop{}
	}
	if metrics == nil {
		metrics = domain.Nop{}
	}
	return &Registry{
		repo:    repo,
		txm:     txm,
		events:  events,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Lookup resolves a short or full code.
func (r *Registry) Lookup(ctx context.Context, code string) (*entity.SerialNumber, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	return r.repo.FindByCode(ctx, code)
}

// FindByCode implements ledger.SerialResolver.
func (r *Registry) FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error) {
	return r.Lookup(ctx, code)
}

// TransitionStatus moves a serial along the lifecycle graph and records the
// history row in the same transaction. The update is conditional on the
// status read, so of two concurrent transitions only one applies.
func (r *Registry) TransitionStatus(
	ctx context.Context,
	code string,
	next entity.SerialStatus,
	reason string,
	actingIdentity string,
) (*entity.SerialNumber, error) {
	if actingIdentity == "" {
		return nil, apperror.NewValidation("acting identity is required")
	}
	if !next.IsValid() {
		return nil, apperror.NewValidation("unknown serial status").WithDetail("status", next)
	}
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	var (
		updated *entity.SerialNumber
		from    entity.SerialStatus
	)
	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		s, err := r.repo.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if !s.Status.CanTransitionTo(next) {
			return apperror.NewInvalidTransition(s.FullCode, string(s.Status), string(next))
		}

		at := r.now()
		if err := r.repo.UpdateStatus(ctx, s.FullCode, s.Status, next, actingIdentity, at); err != nil {
			return err
		}
		if err := r.repo.AppendTransition(ctx, entity.StatusTransition{
			FullCode:       s.FullCode,
			FromStatus:     s.Status,
			ToStatus:       next,
			Reason:         reason,
			ActingIdentity: actingIdentity,
			TransitionedAt: at,
		}); err != nil {
			return err
		}

		from = s.Status
		s.Status = next
		s.StatusChangedBy = &actingIdentity
		s.StatusChangedAt = &at
		updated = s
		return r.events.Publish(ctx, domain.DomainEvent{
			AggregateType: "serial",
			AggregateID:   s.FullCode,
			EventType:     domain.EventSerialStatusChange,
			Payload: map[string]any{
				"serial": s.FullCode,
				"from":   from,
				"to":     next,
				"reason": reason,
			},
		})
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeInvalidTransition) {
			logger.Warn(ctx, "rejected serial transition", "serial", code, "to", next, "acting_identity", actingIdentity)
		}
		return nil, err
	}

	r.metrics.StatusTransition(string(from), string(next))
	logger.Info(ctx, "serial status changed",
		"serial", updated.FullCode,
		"from", from,
		"to", next,
		"acting_identity", actingIdentity,
	)
	return updated, nil
}

// History returns the lifecycle history of a serial.
func (r *Registry) History(ctx context.Context, code string) ([]entity.StatusTransition, error) {
	s, err := r.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.repo.ListTransitions(ctx, s.FullCode)
}

// ListTransitions returns the history of a serial by full code.
func (r *Registry) ListTransitions(ctx context.Context, fullCode string) ([]entity.StatusTransition, error) {
	return r.repo.ListTransitions(ctx, fullCode)
}

// ListByBatch returns every serial minted for a batch.
func (r *Registry) ListByBatch(ctx context.Context, batchNumber string) ([]entity.SerialNumber, error) {
	if _, err := labelcode.ParseBatch(batchNumber); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	return r.repo.ListByBatch(ctx, batchNumber)
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch len(code) {
	case labelcode.SerialShortLen:
		if !labelcode.ValidShort(code) {
			return "", apperror.NewValidation("short code check digit mismatch").WithDetail("code", code)
		}
	case labelcode.SerialFullLen:
		if _, err := labelcode.ParseSerialFull(code); err != nil {
			return "", apperror.NewValidation(err.Error()).WithDetail("code", code)
		}
	default:
		return "", apperror.NewValidation("serial code must be 15 or 35 characters").WithDetail("code", code)
	}
	return code, nil
}
