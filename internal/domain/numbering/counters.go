package numbering

import (
	"context"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/domain"
	"traceledger/pkg/logger"
)

// Counters exposes counter state and the monotonic advance used when
// importing identifiers printed by a previous system.
type Counters struct {
	deps Deps
}

// NewCounters creates the counter admin service.
func NewCounters(deps Deps) *Counters {
	deps.applyDefaults()
	return &Counters{deps: deps}
}

// Get returns the counter for scope.
func (c *Counters) Get(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error) {
	if _, err := c.bound(scope); err != nil {
		return nil, err
	}
	return c.deps.Store.Get(ctx, scope)
}

// AdvanceTo raises the counter so the next issued value is value+1.
// Lower values are ignored; the counter never moves backwards. A value
// outside 0..bound, or a counter that already sits above the configured
// bound, fails with a VALIDATION_ERROR and leaves the counter unchanged.
func (c *Counters) AdvanceTo(ctx context.Context, scope entity.ScopeKey, value int64, actingIdentity string) (*entity.SequenceCounter, error) {
	maxValue, err := c.bound(scope)
	if err != nil {
		return nil, err
	}
	if actingIdentity == "" {
		return nil, apperror.NewValidation("acting identity is required")
	}

	var counter *entity.SequenceCounter
	err = c.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		counter, err = c.deps.Store.AdvanceTo(ctx, scope, value, maxValue, actingIdentity)
		if err != nil {
			return err
		}
		return c.deps.Audit.Record(ctx, domain.AuditEntry{
			EntityType:     "sequence_counter",
			EntityID:       scope.String(),
			Action:         "advance",
			ActingIdentity: actingIdentity,
			Changes:        map[string]any{"requested": value, "current": counter.CurrentValue},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "advanced sequence counter",
		"scope", scope.String(),
		"value", counter.CurrentValue,
		"acting_identity", actingIdentity,
	)
	return counter, nil
}

func (c *Counters) bound(scope entity.ScopeKey) (int64, error) {
	if scope.SiteID < 1 || scope.SiteID > entity.MaxSiteID {
		return 0, apperror.NewValidation("site id must be within 1..999")
	}
	if scope.Date.IsZero() {
		return 0, apperror.NewValidation("date is required")
	}
	switch scope.Purpose {
	case entity.PurposeBatch:
		if !scope.BatchType.IsValid() {
			return 0, apperror.NewValidation("unknown batch type")
		}
		return c.deps.Limits.MaxBatchSequence, nil
	case entity.PurposeSerialUnit:
		if !scope.BatchType.IsValid() {
			return 0, apperror.NewValidation("unknown batch type")
		}
		if scope.BatchSequence < 1 || int64(scope.BatchSequence) > c.deps.Limits.MaxBatchSequence {
			return 0, apperror.NewValidation("batch sequence out of range")
		}
		return c.deps.Limits.MaxUnitSequence, nil
	case entity.PurposeSerialDaily:
		return c.deps.Limits.MaxDailySequence, nil
	}
	return 0, apperror.NewValidation("unknown counter purpose").WithDetail("purpose", scope.Purpose)
}
