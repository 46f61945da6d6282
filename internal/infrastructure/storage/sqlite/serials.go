package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/domain/serials"
)

var serialColumns = []string{
	"full_code", "short_code", "batch_number", "site_id", "batch_type",
	"production_date", "batch_sequence", "unit_sequence", "daily_sequence",
	"strain_code", "weight", "pack_qty", "product_id", "status",
	"created_by", "created_at", "status_changed_by", "status_changed_at",
}

var transitionColumns = []string{
	"full_code", "from_status", "to_status", "reason", "acting_identity", "transitioned_at",
}

// SerialStore implements serials.Repository.
type SerialStore struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

var _ serials.Repository = (*SerialStore)(nil)

// NewSerialStore creates a serial store.
func NewSerialStore(txm *TxManager) *SerialStore {
	return &SerialStore{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// CreateBatch implements serials.Repository.
func (s *SerialStore) CreateBatch(ctx context.Context, list []entity.SerialNumber) error {
	if len(list) == 0 {
		return nil
	}
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		// Chunks keep each statement under SQLite's bound-variable limit.
		const chunk = 500
		for start := 0; start < len(list); start += chunk {
			end := min(start+chunk, len(list))
			ins := s.builder.Insert("sys_serial_numbers").Columns(serialColumns...)
			for _, sn := range list[start:end] {
				var changedAt any
				if sn.StatusChangedAt != nil {
					changedAt = micros(*sn.StatusChangedAt)
				}
				ins = ins.Values(
					sn.FullCode, sn.ShortCode, sn.BatchNumber, sn.SiteID, string(sn.BatchType),
					sn.ProductionDate.Format(entity.DateLayout), sn.BatchSequence, sn.UnitSequence, sn.DailySequence,
					sn.StrainCode, sn.Weight.StringFixed(2), sn.PackQty, nullString(sn.ProductID), string(sn.Status),
					sn.CreatedBy, micros(sn.CreatedAt), nullString(sn.StatusChangedBy), changedAt,
				)
			}
			query, args, err := ins.ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			if _, err := q.ExecContext(ctx, query, args...); err != nil {
				if isUniqueViolation(err, "") {
					return apperror.NewDuplicateIdentifier("serial", []string{list[start].FullCode}).WithCause(err)
				}
				return fmt.Errorf("insert serials: %w", err)
			}
		}
		return nil
	})
}

// FindExisting implements serials.Repository.
func (s *SerialStore) FindExisting(ctx context.Context, fullCodes, shortCodes []string) ([]string, error) {
	var out []string
	for _, part := range []struct {
		column string
		codes  []string
	}{{"full_code", fullCodes}, {"short_code", shortCodes}} {
		if len(part.codes) == 0 {
			continue
		}
		query, args, err := s.builder.Select(part.column).
			From("sys_serial_numbers").
			Where(squirrel.Eq{part.column: part.codes}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build query: %w", err)
		}
		var found []string
		if err := sqlscan.Select(ctx, s.txm.GetQuerier(ctx), &found, query, args...); err != nil {
			return nil, fmt.Errorf("find existing serials: %w", err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// FindByCode implements serials.Repository.
func (s *SerialStore) FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error) {
	list, err := s.selectSerials(ctx, squirrel.Or{squirrel.Eq{"full_code": code}, squirrel.Eq{"short_code": code}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperror.NewNotFound("serial", code)
	}
	return &list[0], nil
}

// UpdateStatus implements serials.Repository.
func (s *SerialStore) UpdateStatus(ctx context.Context, fullCode string, from, to entity.SerialStatus, actingIdentity string, at time.Time) error {
	query, args, err := s.builder.Update("sys_serial_numbers").
		Set("status", string(to)).
		Set("status_changed_by", actingIdentity).
		Set("status_changed_at", micros(at)).
		Where(squirrel.Eq{"full_code": fullCode, "status": string(from)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	q := s.txm.GetQuerier(ctx)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update serial status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindByCode(ctx, fullCode); err != nil {
			return err
		}
		return apperror.NewConcurrentModification("serial", fullCode)
	}
	return nil
}

// AppendTransition implements serials.Repository.
func (s *SerialStore) AppendTransition(ctx context.Context, t entity.StatusTransition) error {
	query, args, err := s.builder.Insert("sys_serial_status_history").
		Columns(transitionColumns...).
		Values(t.FullCode, string(t.FromStatus), string(t.ToStatus), t.Reason, t.ActingIdentity, micros(t.TransitionedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert status transition: %w", err)
	}
	return nil
}

// ListTransitions implements serials.Repository.
func (s *SerialStore) ListTransitions(ctx context.Context, fullCode string) ([]entity.StatusTransition, error) {
	query, args, err := s.builder.Select(transitionColumns...).
		From("sys_serial_status_history").
		Where(squirrel.Eq{"full_code": fullCode}).
		OrderBy("transitioned_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []transitionRow
	if err := sqlscan.Select(ctx, s.txm.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	out := make([]entity.StatusTransition, len(rows))
	for i, r := range rows {
		out[i] = r.toEntity()
	}
	return out, nil
}

// ListByBatch implements serials.Repository.
func (s *SerialStore) ListByBatch(ctx context.Context, batchNumber string) ([]entity.SerialNumber, error) {
	return s.selectSerials(ctx, squirrel.Eq{"batch_number": batchNumber})
}

func (s *SerialStore) selectSerials(ctx context.Context, where squirrel.Sqlizer) ([]entity.SerialNumber, error) {
	query, args, err := s.builder.Select(serialColumns...).
		From("sys_serial_numbers").
		Where(where).
		OrderBy("unit_sequence").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []serialRow
	if err := sqlscan.Select(ctx, s.txm.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select serials: %w", err)
	}
	out := make([]entity.SerialNumber, 0, len(rows))
	for _, r := range rows {
		sn, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, nil
}
