package numbering

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
	"traceledger/internal/domain"
	"traceledger/internal/domain/serials"
	"traceledger/pkg/labelcode"
	"traceledger/pkg/logger"
)

// SerialAllocator issues dual-format serial numbers for units of a batch.
type SerialAllocator struct {
	deps    Deps
	serials serials.Repository
}

// NewSerialAllocator creates a serial number allocator.
func NewSerialAllocator(deps Deps, repo serials.Repository) *SerialAllocator {
	deps.applyDefaults()
	return &SerialAllocator{deps: deps, serials: repo}
}

// Allocate issues a single serial number.
func (a *SerialAllocator) Allocate(
	ctx context.Context,
	scope entity.SerialScope,
	attrs entity.SerialAttributes,
	actingIdentity string,
) (*entity.SerialNumber, error) {
	out, err := a.AllocateBulk(ctx, scope, 1, attrs, actingIdentity)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// AllocateBulk reserves count contiguous unit and daily sequences in one
// atomic step and registers a CREATED serial for each. Either all count
// serials are issued or none are and no counter moves.
func (a *SerialAllocator) AllocateBulk(
	ctx context.Context,
	scope entity.SerialScope,
	count int,
	attrs entity.SerialAttributes,
	actingIdentity string,
) ([]entity.SerialNumber, error) {
	ctx, span := tracer.Start(ctx, "SerialAllocator.AllocateBulk")
	defer span.End()
	span.SetAttributes(attribute.Int("site_id", scope.SiteID), attribute.Int("count", count))

	if count < 1 || count > a.deps.Limits.MaxBulk {
		return nil, apperror.NewValidation(fmt.Sprintf("count must be within 1..%d", a.deps.Limits.MaxBulk)).
			WithDetail("count", count)
	}
	if err := validateBatchScope(scope.SiteID, scope.BatchType, scope.ProductionDate, actingIdentity); err != nil {
		return nil, err
	}
	if scope.BatchSequence < 1 || int64(scope.BatchSequence) > a.deps.Limits.MaxBatchSequence {
		return nil, apperror.NewValidation("batch sequence out of range").WithDetail("batchSequence", scope.BatchSequence)
	}
	strain, err := labelcode.NormalizeStrain(attrs.StrainCode)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	if _, err := labelcode.EncodeWeight(attrs.Weight); err != nil {
		return nil, apperror.NewValidation(err.Error()).WithDetail("weight", attrs.Weight.String())
	}
	if attrs.PackQty < 1 || attrs.PackQty > labelcode.MaxPackQty {
		return nil, apperror.NewValidation("pack quantity must be within 1..999").WithDetail("packQty", attrs.PackQty)
	}
	attrs.StrainCode = strain

	day := entity.Day(scope.ProductionDate)
	unitScope := entity.SerialUnitScope(scope.SiteID, scope.BatchType, scope.BatchSequence, day)
	dailyScope := entity.SerialDailyScope(scope.SiteID, day)

	var issued []entity.SerialNumber
	err = a.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		ranges, err := a.deps.Store.Reserve(ctx, []sequence.Request{
			{Scope: unitScope, Count: int64(count), Max: a.deps.Limits.MaxUnitSequence},
			{Scope: dailyScope, Count: int64(count), Max: a.deps.Limits.MaxDailySequence},
		}, actingIdentity)
		if err != nil {
			return err
		}

		issued, err = buildSerials(scope, day, attrs, ranges[0], ranges[1], actingIdentity, a.deps.Now())
		if err != nil {
			return apperror.NewInternal(err)
		}
		if err := a.ensureUnique(ctx, issued); err != nil {
			return err
		}
		if err := a.serials.CreateBatch(ctx, issued); err != nil {
			return err
		}

		if err := a.deps.Audit.Record(ctx, domain.AuditEntry{
			EntityType:     "serial_number",
			EntityID:       issued[0].BatchNumber,
			Action:         "allocate",
			ActingIdentity: actingIdentity,
			Changes: map[string]any{
				"count":      count,
				"unit_first": ranges[0].First,
				"unit_last":  ranges[0].Last,
				"first":      issued[0].FullCode,
				"last":       issued[len(issued)-1].FullCode,
			},
		}); err != nil {
			return err
		}
		return a.deps.Events.Publish(ctx, domain.DomainEvent{
			AggregateType: "batch",
			AggregateID:   issued[0].BatchNumber,
			EventType:     domain.EventSerialsAllocated,
			Payload: map[string]any{
				"batchNumber": issued[0].BatchNumber,
				"count":       count,
				"first":       issued[0].FullCode,
				"last":        issued[len(issued)-1].FullCode,
			},
		})
	})
	if err != nil {
		switch {
		case apperror.HasCode(err, apperror.CodeExhausted):
			a.deps.Metrics.ScopeExhausted(string(entity.PurposeSerialUnit))
			logger.Warn(ctx, "serial scope exhausted", "scope", unitScope.String(), "count", count)
		case apperror.HasCode(err, apperror.CodeDuplicateIdentifier):
			a.deps.Metrics.IntegrityFailure("serial")
			logger.Alert(ctx, "duplicate serial identifier", "scope", unitScope.String(), "error", err)
		}
		return nil, err
	}

	a.deps.Metrics.IdentifiersIssued("serial", len(issued))
	logger.Info(ctx, "allocated serial numbers",
		"batch_number", issued[0].BatchNumber,
		"count", len(issued),
		"acting_identity", actingIdentity,
	)
	return issued, nil
}

// ensureUnique is the safety net behind counter uniqueness: any clash here
// means a counter or formatting bug.
func (a *SerialAllocator) ensureUnique(ctx context.Context, batch []entity.SerialNumber) error {
	full := make([]string, len(batch))
	short := make([]string, len(batch))
	seen := make(map[string]struct{}, 2*len(batch))
	var dups []string
	for i, s := range batch {
		full[i], short[i] = s.FullCode, s.ShortCode
		for _, c := range []string{s.FullCode, s.ShortCode} {
			if _, ok := seen[c]; ok {
				dups = append(dups, c)
			}
			seen[c] = struct{}{}
		}
	}
	if len(dups) == 0 {
		existing, err := a.serials.FindExisting(ctx, full, short)
		if err != nil {
			return fmt.Errorf("check existing serials: %w", err)
		}
		dups = existing
	}
	if len(dups) > 0 {
		return apperror.NewDuplicateIdentifier("serial", dups)
	}
	return nil
}

func buildSerials(
	scope entity.SerialScope,
	day time.Time,
	attrs entity.SerialAttributes,
	units, daily sequence.Range,
	actingIdentity string,
	now time.Time,
) ([]entity.SerialNumber, error) {
	if units.Len() != daily.Len() {
		return nil, fmt.Errorf("reserved ranges differ: %d units, %d daily", units.Len(), daily.Len())
	}
	var productID *string
	if attrs.ProductID != "" {
		productID = &attrs.ProductID
	}

	out := make([]entity.SerialNumber, 0, units.Len())
	for i := int64(0); i < units.Len(); i++ {
		parts := labelcode.Serial{
			SiteID:        scope.SiteID,
			StrainCode:    attrs.StrainCode,
			TypeCode:      scope.BatchType.Code(),
			Date:          day,
			BatchSequence: scope.BatchSequence,
			UnitSequence:  int(units.First + i),
			DailySequence: int(daily.First + i),
			Weight:        attrs.Weight,
			PackQty:       attrs.PackQty,
		}
		full, err := labelcode.FormatSerialFull(parts)
		if err != nil {
			return nil, err
		}
		short, err := labelcode.FormatSerialShort(parts.SiteID, day, parts.DailySequence)
		if err != nil {
			return nil, err
		}
		batchNumber, err := parts.BatchNumber()
		if err != nil {
			return nil, err
		}
		out = append(out, entity.SerialNumber{
			FullCode:       full,
			ShortCode:      short,
			BatchNumber:    batchNumber,
			SiteID:         scope.SiteID,
			BatchType:      scope.BatchType,
			ProductionDate: day,
			BatchSequence:  scope.BatchSequence,
			UnitSequence:   parts.UnitSequence,
			DailySequence:  parts.DailySequence,
			StrainCode:     attrs.StrainCode,
			Weight:         attrs.Weight,
			PackQty:        attrs.PackQty,
			ProductID:      productID,
			Status:         entity.SerialCreated,
			CreatedBy:      actingIdentity,
			CreatedAt:      now,
		})
	}
	return out, nil
}
