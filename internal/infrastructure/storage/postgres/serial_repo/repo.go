// Package serial_repo provides the PostgreSQL serial registry store.
package serial_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/storage/postgres"
)

const (
	serialsTable = "sys_serial_numbers"
	historyTable = "sys_serial_status_history"
)

var serialColumns = []string{
	"full_code", "short_code", "batch_number", "site_id", "batch_type",
	"production_date", "batch_sequence", "unit_sequence", "daily_sequence",
	"strain_code", "weight", "pack_qty", "product_id", "status",
	"created_by", "created_at", "status_changed_by", "status_changed_at",
}

var historyColumns = []string{
	"full_code", "from_status", "to_status", "reason", "acting_identity", "transitioned_at",
}

// Repo implements serials.Repository.
type Repo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	builder  squirrel.StatementBuilderType
}

var _ serials.Repository = (*Repo)(nil)

// NewRepo creates a serial repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateBatch implements serials.Repository using COPY.
func (r *Repo) CreateBatch(ctx context.Context, list []entity.SerialNumber) error {
	if len(list) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(list))
	for _, s := range list {
		rows = append(rows, []any{
			s.FullCode, s.ShortCode, s.BatchNumber, s.SiteID, string(s.BatchType),
			s.ProductionDate, s.BatchSequence, s.UnitSequence, s.DailySequence,
			s.StrainCode, postgres.Numeric(s.Weight), s.PackQty, s.ProductID, string(s.Status),
			s.CreatedBy, s.CreatedAt, s.StatusChangedBy, s.StatusChangedAt,
		})
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.inserter.CopyFromSlice(ctx, serialsTable, serialColumns, rows); err != nil {
			if code, constraint := postgres.ErrorCode(err); code == postgres.CodeUniqueViolation {
				return apperror.NewDuplicateIdentifier("serial", []string{constraint}).WithCause(err)
			}
			return fmt.Errorf("copy serials: %w", err)
		}
		return nil
	})
}

// FindExisting implements serials.Repository.
func (r *Repo) FindExisting(ctx context.Context, fullCodes, shortCodes []string) ([]string, error) {
	query, args, err := r.builder.
		Select("full_code", "short_code").
		From(serialsTable).
		Where(squirrel.Or{
			squirrel.Expr("full_code = ANY(?)", fullCodes),
			squirrel.Expr("short_code = ANY(?)", shortCodes),
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var found []struct {
		FullCode  string `db:"full_code"`
		ShortCode string `db:"short_code"`
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &found, query, args...); err != nil {
		return nil, fmt.Errorf("find existing serials: %w", err)
	}

	wanted := make(map[string]struct{}, len(fullCodes)+len(shortCodes))
	for _, c := range fullCodes {
		wanted[c] = struct{}{}
	}
	for _, c := range shortCodes {
		wanted[c] = struct{}{}
	}
	var out []string
	for _, f := range found {
		if _, ok := wanted[f.FullCode]; ok {
			out = append(out, f.FullCode)
		}
		if _, ok := wanted[f.ShortCode]; ok {
			out = append(out, f.ShortCode)
		}
	}
	return out, nil
}

// FindByCode implements serials.Repository.
func (r *Repo) FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error) {
	query, args, err := r.builder.
		Select(serialColumns...).
		From(serialsTable).
		Where(squirrel.Or{squirrel.Eq{"full_code": code}, squirrel.Eq{"short_code": code}}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s entity.SerialNumber
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("serial", code)
		}
		return nil, fmt.Errorf("get serial: %w", err)
	}
	return &s, nil
}

// UpdateStatus implements serials.Repository. The WHERE clause on the
// previous status is the optimistic check.
func (r *Repo) UpdateStatus(ctx context.Context, fullCode string, from, to entity.SerialStatus, actingIdentity string, at time.Time) error {
	query, args, err := r.builder.
		Update(serialsTable).
		Set("status", string(to)).
		Set("status_changed_by", actingIdentity).
		Set("status_changed_at", at).
		Where(squirrel.Eq{"full_code": fullCode, "status": string(from)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update serial status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+serialsTable+` WHERE full_code = $1)`, fullCode).Scan(&exists); err != nil {
			return fmt.Errorf("check serial: %w", err)
		}
		if !exists {
			return apperror.NewNotFound("serial", fullCode)
		}
		return apperror.NewConcurrentModification("serial", fullCode)
	}
	return nil
}

// AppendTransition implements serials.Repository.
func (r *Repo) AppendTransition(ctx context.Context, t entity.StatusTransition) error {
	query, args, err := r.builder.
		Insert(historyTable).
		Columns(historyColumns...).
		Values(t.FullCode, string(t.FromStatus), string(t.ToStatus), t.Reason, t.ActingIdentity, t.TransitionedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert status transition: %w", err)
	}
	return nil
}

// ListTransitions implements serials.Repository.
func (r *Repo) ListTransitions(ctx context.Context, fullCode string) ([]entity.StatusTransition, error) {
	query, args, err := r.builder.
		Select(historyColumns...).
		From(historyTable).
		Where(squirrel.Eq{"full_code": fullCode}).
		OrderBy("transitioned_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.StatusTransition
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return out, nil
}

// ListByBatch implements serials.Repository.
func (r *Repo) ListByBatch(ctx context.Context, batchNumber string) ([]entity.SerialNumber, error) {
	query, args, err := r.builder.
		Select(serialColumns...).
		From(serialsTable).
		Where(squirrel.Eq{"batch_number": batchNumber}).
		OrderBy("unit_sequence").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.SerialNumber
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list serials by batch: %w", err)
	}
	return out, nil
}
