// Package sequence_repo provides the PostgreSQL counter store.
package sequence_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
	"traceledger/internal/infrastructure/storage/postgres"
)

const countersTable = "sys_sequence_counters"

// reserveSQL adds $7 to a counter only while the result stays within the
// bound. The row lock taken by ON CONFLICT serialises concurrent callers on
// one scope; no row comes back when the bound would be passed.
const reserveSQL = `
	INSERT INTO sys_sequence_counters (
		scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
		current_value, max_value, last_generated_by, last_generated_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	ON CONFLICT (scope_key) DO UPDATE
	SET current_value     = sys_sequence_counters.current_value + EXCLUDED.current_value,
	    max_value         = EXCLUDED.max_value,
	    last_generated_by = EXCLUDED.last_generated_by,
	    last_generated_at = EXCLUDED.last_generated_at
	WHERE sys_sequence_counters.current_value + EXCLUDED.current_value <= EXCLUDED.max_value
	RETURNING current_value`

const advanceSQL = `
	INSERT INTO sys_sequence_counters (
		scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
		current_value, max_value, last_generated_by, last_generated_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	ON CONFLICT (scope_key) DO UPDATE
	SET current_value     = GREATEST(sys_sequence_counters.current_value, EXCLUDED.current_value),
	    max_value         = EXCLUDED.max_value,
	    last_generated_by = CASE WHEN EXCLUDED.current_value > sys_sequence_counters.current_value
	                             THEN EXCLUDED.last_generated_by ELSE sys_sequence_counters.last_generated_by END,
	    last_generated_at = CASE WHEN EXCLUDED.current_value > sys_sequence_counters.current_value
	                             THEN EXCLUDED.last_generated_at ELSE sys_sequence_counters.last_generated_at END
	WHERE sys_sequence_counters.current_value <= EXCLUDED.max_value
	RETURNING scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
	          current_value, max_value, last_generated_by, last_generated_at, created_at`

// Store implements sequence.Store on sys_sequence_counters.
type Store struct {
	txm *postgres.TxManager
	now func() time.Time
}

var _ sequence.Store = (*Store)(nil)

// NewStore creates a counter store.
func NewStore(txm *postgres.TxManager) *Store {
	return &Store{txm: txm, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve implements sequence.Store. Scopes are locked in key order inside
// one transaction; joining the caller's transaction when there is one.
func (s *Store) Reserve(ctx context.Context, reqs []sequence.Request, actingIdentity string) ([]sequence.Range, error) {
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
			err := q.QueryRow(ctx, reserveSQL, scopeArgs(r.Scope, r.Count, r.Max, actingIdentity, now)...).Scan(&last)
			if errors.Is(err, pgx.ErrNoRows) {
				current, cerr := s.currentValue(ctx, q, r.Scope)
				if cerr != nil {
					return cerr
				}
				return sequence.Exhausted(r, current)
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
func (s *Store) Get(ctx context.Context, scope entity.ScopeKey) (*entity.SequenceCounter, error) {
	var c entity.SequenceCounter
	err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), &c, `
		SELECT scope_key, purpose, site_id, batch_type, batch_sequence, scope_date,
		       current_value, max_value, last_generated_by, last_generated_at, created_at
		FROM `+countersTable+` WHERE scope_key = $1`, scope.String())
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sequence counter", scope.String())
		}
		return nil, fmt.Errorf("get counter %s: %w", scope, err)
	}
	return &c, nil
}

// AdvanceTo implements sequence.Store.
func (s *Store) AdvanceTo(ctx context.Context, scope entity.ScopeKey, value, maxValue int64, actingIdentity string) (*entity.SequenceCounter, error) {
	if err := sequence.ValidateAdvance(scope, value, maxValue); err != nil {
		return nil, err
	}

	var c entity.SequenceCounter
	err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), &c, advanceSQL,
		scopeArgs(scope, value, maxValue, actingIdentity, s.now())...)
	if err != nil {
		if pgxscan.NotFound(err) {
			// The stored value already exceeds the requested bound.
			current, cerr := s.currentValue(ctx, s.txm.GetQuerier(ctx), scope)
			if cerr != nil {
				return nil, cerr
			}
			return nil, apperror.NewValidation("counter is already beyond the bound").
				WithDetail("scope", scope.String()).
				WithDetail("current", current).
				WithDetail("max", maxValue)
		}
		return nil, fmt.Errorf("advance %s: %w", scope, err)
	}
	return &c, nil
}

func (s *Store) currentValue(ctx context.Context, q postgres.Querier, scope entity.ScopeKey) (int64, error) {
	var current int64
	err := q.QueryRow(ctx, `SELECT current_value FROM `+countersTable+` WHERE scope_key = $1`, scope.String()).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", scope, err)
	}
	return current, nil
}

func scopeArgs(scope entity.ScopeKey, value, maxValue int64, actingIdentity string, now time.Time) []any {
	return []any{
		scope.String(), string(scope.Purpose), scope.SiteID, string(scope.BatchType),
		scope.BatchSequence, scope.Date, value, maxValue, actingIdentity, now,
	}
}
