package numbering

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
	"traceledger/internal/core/tx"
	"traceledger/internal/domain"
	"traceledger/pkg/labelcode"
	"traceledger/pkg/logger"
)

var tracer = otel.Tracer("traceledger/numbering")

// Deps wires an allocator to its collaborators. Audit, Events and Metrics
// default to no-ops.
type Deps struct {
	Store     sequence.Store
	TxManager tx.Manager
	Audit     domain.AuditLogger
	Events    domain.EventPublisher
	Metrics   domain.Metrics
	Limits    Limits
	Now       func() time.Time
}

func (d *Deps) applyDefaults() {
	if d.Audit == nil {
		d.Audit = domain.Nop{}
	}
	if d.Events == nil {
		d.Events = domain.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = domain.Nop{}
	}
	if d.Limits == (Limits{}) {
		d.Limits = DefaultLimits()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// BatchAllocator issues batch numbers per (site, batch type, day).
type BatchAllocator struct {
	deps Deps
}

// NewBatchAllocator creates a batch number allocator.
func NewBatchAllocator(deps Deps) *BatchAllocator {
	deps.applyDefaults()
	return &BatchAllocator{deps: deps}
}

// Allocate reserves the next sequence for the scope and formats it.
// The counter, its last-generated metadata and the audit entry are written
// in one transaction. Past the bound it returns SCOPE_EXHAUSTED and the
// counter is left unchanged.
func (a *BatchAllocator) Allocate(
	ctx context.Context,
	siteID int,
	batchType entity.BatchType,
	date time.Time,
	actingIdentity string,
) (*entity.BatchNumber, error) {
	ctx, span := tracer.Start(ctx, "BatchAllocator.Allocate")
	defer span.End()
	span.SetAttributes(attribute.Int("site_id", siteID), attribute.String("batch_type", string(batchType)))

	if err := validateBatchScope(siteID, batchType, date, actingIdentity); err != nil {
		return nil, err
	}

	scope := entity.BatchScope(siteID, batchType, date)
	var result *entity.BatchNumber

	err := a.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		ranges, err := a.deps.Store.Reserve(ctx, []sequence.Request{{
			Scope: scope,
			Count: 1,
			Max:   a.deps.Limits.MaxBatchSequence,
		}}, actingIdentity)
		if err != nil {
			return err
		}

		seq := int(ranges[0].First)
		code, err := labelcode.FormatBatch(labelcode.Batch{
			SiteID:   siteID,
			TypeCode: batchType.Code(),
			Date:     scope.Date,
			Sequence: seq,
		})
		if err != nil {
			return apperror.NewInternal(err)
		}
		result = &entity.BatchNumber{
			Code:      code,
			SiteID:    siteID,
			BatchType: batchType,
			Date:      scope.Date,
			Sequence:  seq,
		}

		if err := a.deps.Audit.Record(ctx, domain.AuditEntry{
			EntityType:     "batch_number",
			EntityID:       code,
			Action:         "allocate",
			ActingIdentity: actingIdentity,
			Changes:        map[string]any{"scope": scope.String(), "sequence": seq},
		}); err != nil {
			return err
		}
		return a.deps.Events.Publish(ctx, domain.DomainEvent{
			AggregateType: "batch",
			AggregateID:   code,
			EventType:     domain.EventBatchAllocated,
			Payload:       result,
		})
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeExhausted) {
			a.deps.Metrics.ScopeExhausted(string(entity.PurposeBatch))
			logger.Warn(ctx, "batch scope exhausted", "scope", scope.String(), "acting_identity", actingIdentity)
		}
		return nil, err
	}

	a.deps.Metrics.IdentifiersIssued("batch", 1)
	logger.Info(ctx, "allocated batch number",
		"batch_number", result.Code,
		"acting_identity", actingIdentity,
	)
	return result, nil
}

func validateBatchScope(siteID int, batchType entity.BatchType, date time.Time, actingIdentity string) error {
	if siteID < 1 || siteID > entity.MaxSiteID {
		return apperror.NewValidation("site id must be within 1..999").WithDetail("siteId", siteID)
	}
	if !batchType.IsValid() {
		return apperror.NewValidation("unknown batch type").WithDetail("batchType", batchType)
	}
	if date.IsZero() {
		return apperror.NewValidation("date is required")
	}
	if actingIdentity == "" {
		return apperror.NewValidation("acting identity is required")
	}
	return nil
}
