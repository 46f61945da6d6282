package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
)

var counterColumns = []string{
	"scope_key", "purpose", "site_id", "batch_type", "batch_sequence", "scope_date",
	"current_value", "max_value", "last_generated_by", "last_generated_at", "created_at",
}

const reserveSQL = `
	INSERT INTO sys_sequence_counters (
		scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
		current_value, max_value, last_generated_by, last_generated_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (scope_key) DO UPDATE
	SET current_value     = current_value + excluded.current_value,
	    max_value         = excluded.max_value,
	    last_generated_by = excluded.last_generated_by,
	    last_generated_at = excluded.last_generated_at
	WHERE current_value + excluded.current_value <= excluded.max_value
	RETURNING current_value`

const advanceSQL = `
	INSERT INTO sys_sequence_counters (
		scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
		current_value, max_value, last_generated_by, last_generated_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (scope_key) DO UPDATE
	SET last_generated_by = CASE WHEN excluded.current_value > current_value
	                             THEN excluded.last_generated_by ELSE last_generated_by END,
	    last_generated_at = CASE WHEN excluded.current_value > current_value
	                             THEN excluded.last_generated_at ELSE last_generated_at END,
	    current_value     = MAX(current_value, excluded.current_value),
	    max_value         = excluded.max_value
	WHERE current_value <= excluded.max_value`

// SequenceStore implements sequence.Store.
type SequenceStore struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

var _ sequence.Store = (*SequenceStore)(nil)

// NewSequenceStore creates a counter store.
func NewSequenceStore(txm *TxManager) *SequenceStore {
	return &SequenceStore{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reserve implements sequence.Store.
func (s *SequenceStore) Reserve(ctx context.Context, reqs []sequence.Request, actingIdentity string) ([]sequence.Range, error) {
	if err := sequence.Validate(reqs); err != nil {
		return nil, err
	}

	out := make([]sequence.Range, len(reqs))
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		now := s.now()
		for _, i := range sequence.LockOrder(reqs) {
			r := reqs[i]
			if r.Count > r.Max {
				return sequence.Exhausted(r, 0)
			}

			var last int64
			err := q.QueryRowContext(ctx, reserveSQL, counterArgs(r.Scope, r.Count, r.Max, actingIdentity, now)...).Scan(&last)
			if errors.Is(err, sql.ErrNoRows) {
				c, gerr := s.Get(ctx, r.Scope)
				if gerr != nil {
					return gerr
				}
				return sequence.Exhausted(r, c.CurrentValue)
			}
			if err != nil {
				return fmt.Errorf("reserve %s: %w", r.Scope, err)
			}
			out[i] = sequence.Range{Scope: r.Scope, First: last - r.Count + 1, Last: last}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements sequence.Store.
func (s *SequenceStore) Get(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error) {
	query, args, err := s.builder.Select(counterColumns...).
		From("sys_sequence_counters").
		Where(squirrel.Eq{"scope_key": scope.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row counterRow
	if err := sqlscan.Get(ctx, s.txm.GetQuerier(ctx), &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperror.NewNotFound("sequence counter", scope.String())
		}
		return nil, fmt.Errorf("get counter %s: %w", scope, err)
	}
	return row.toEntity()
}

// AdvanceTo implements sequence.Store.
func (s *SequenceStore) AdvanceTo(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error) {
	if err := sequence.ValidateAdvance(scope, value, maxValue); err != nil {
		return nil, err
	}

	var out *entity.SequenceCounter
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, err := s.txm.GetQuerier(ctx).ExecContext(ctx, advanceSQL,
			counterArgs(scope, value, maxValue, actingIdentity, s.now())...)
		if err != nil {
			return fmt.Errorf("advance %s: %w", scope, err)
		}
		c, err := s.Get(ctx, scope)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NewValidation("counter is already beyond the bound").
				WithDetail("scope", scope.String()).
				WithDetail("current", c.CurrentValue).
				WithDetail("max", maxValue)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func counterArgs(scope entity.ScopeKey, value, maxValue int64, actingIdentity string, now time.Time) []any {
	return []any{
		scope.String(), string(scope.Purpose), scope.SiteID, string(scope.BatchType),
		scope.BatchSequence, scope.DateString(), value, maxValue, actingIdentity, micros(now), micros(now),
	}
}
