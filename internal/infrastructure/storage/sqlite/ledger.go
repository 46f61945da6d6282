package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
)

var movementInsertColumns = []string{
	"line_id", "product_id", "direction", "quantity", "mass", "value",
	"batch_number", "serial_number", "transaction_type", "header_id", "detail_id",
	"occurred_at", "recorded_at", "acting_identity", "compensates_line_id",
	"reason", "idempotency_key",
}

var movementSelectColumns = append([]string{"seq"}, movementInsertColumns...)

var requestColumns = []string{"idempotency_key", "fingerprint", "acting_identity", "line_count", "created_at"}

// LedgerStore implements ledger.Repository and ledger.Reader.
type LedgerStore struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

var (
	_ ledger.Repository = (*LedgerStore)(nil)
	_ ledger.Reader     = (*LedgerStore)(nil)
)

// NewLedgerStore creates a ledger store.
func NewLedgerStore(txm *TxManager) *LedgerStore {
	return &LedgerStore{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Insert implements ledger.Repository.
func (s *LedgerStore) Insert(ctx context.Context, events []entity.MovementEvent) ([]entity.MovementEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	out := make([]entity.MovementEvent, len(events))
	copy(out, events)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		for i := range out {
			query, args, err := s.builder.Insert("reg_movements").
				Columns(movementInsertColumns...).
				Values(movementArgs(out[i])...).
				ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			res, err := q.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			seq, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read movement sequence: %w", err)
			}
			out[i].Sequence = seq
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err, "reg_movements.compensates_line_id") {
			return nil, apperror.NewConflict("movement is already compensated").WithCause(err)
		}
		return nil, fmt.Errorf("insert movements: %w", err)
	}
	return out, nil
}

// GetByLineID implements ledger.Repository.
func (s *LedgerStore) GetByLineID(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	m, err := s.getOne(ctx, squirrel.Eq{"line_id": lineID.String()})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperror.NewNotFound("movement", lineID)
	}
	return m, nil
}

// FindCompensation implements ledger.Repository.
func (s *LedgerStore) FindCompensation(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	return s.getOne(ctx, squirrel.Eq{"compensates_line_id": lineID.String()})
}

func (s *LedgerStore) getOne(ctx context.Context, where squirrel.Sqlizer) (*entity.MovementEvent, error) {
	list, err := s.list(ctx, where, "seq")
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// SaveRequest implements ledger.Repository.
func (s *LedgerStore) SaveRequest(ctx context.Context, rec ledger.IdempotencyRecord) error {
	query, args, err := s.builder.Insert("reg_movement_requests").
		Columns(requestColumns...).
		Values(rec.Key, rec.Fingerprint, rec.ActingIdentity, rec.LineCount, micros(rec.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err, "") {
			return apperror.NewIdempotencyConflict(rec.Key)
		}
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// GetRequest implements ledger.Repository.
func (s *LedgerStore) GetRequest(ctx context.Context, key string) (*ledger.IdempotencyRecord, error) {
	query, args, err := s.builder.Select(requestColumns...).
		From("reg_movement_requests").
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row struct {
		Key            string `db:"idempotency_key"`
		Fingerprint    string `db:"fingerprint"`
		ActingIdentity string `db:"acting_identity"`
		LineCount      int    `db:"line_count"`
		CreatedAt      int64  `db:"created_at"`
	}
	if err := sqlscan.Get(ctx, s.txm.GetQuerier(ctx), &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &ledger.IdempotencyRecord{
		Key:            row.Key,
		Fingerprint:    row.Fingerprint,
		ActingIdentity: row.ActingIdentity,
		LineCount:      row.LineCount,
		CreatedAt:      fromMicros(row.CreatedAt),
	}, nil
}

// ListByIdempotencyKey implements ledger.Repository.
func (s *LedgerStore) ListByIdempotencyKey(ctx context.Context, key string) ([]entity.MovementEvent, error) {
	return s.list(ctx, squirrel.Eq{"idempotency_key": key}, "seq")
}

// Balance implements ledger.Reader.
func (s *LedgerStore) Balance(ctx context.Context, q ledger.BalanceQuery) (types.Quantity, error) {
	where := squirrel.And{squirrel.Eq{"product_id": q.ProductID}}
	if q.BatchNumber != "" {
		where = append(where, squirrel.Eq{"batch_number": q.BatchNumber})
	}
	if q.Exclusive {
		where = append(where, squirrel.Lt{"occurred_at": micros(q.AsOf)})
	} else {
		where = append(where, squirrel.LtOrEq{"occurred_at": micros(q.AsOf)})
	}

	query, args, err := s.builder.
		Select("COALESCE(SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END), 0)").
		From("reg_movements").
		Where(where).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total sql.NullInt64
	if err := s.txm.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(total.Int64), nil
}

// ListMovements implements ledger.Reader.
func (s *LedgerStore) ListMovements(ctx context.Context, f ledger.MovementFilter) ([]entity.MovementEvent, error) {
	where := squirrel.And{}
	if f.ProductID != "" {
		where = append(where, squirrel.Eq{"product_id": f.ProductID})
	}
	if f.BatchNumber != "" {
		where = append(where, squirrel.Eq{"batch_number": f.BatchNumber})
	}
	if f.SerialNumber != "" {
		where = append(where, squirrel.Eq{"serial_number": f.SerialNumber})
	}
	if f.From != nil {
		where = append(where, squirrel.GtOrEq{"occurred_at": micros(*f.From)})
	}
	if f.To != nil {
		where = append(where, squirrel.LtOrEq{"occurred_at": micros(*f.To)})
	}
	return s.list(ctx, where, "occurred_at", "seq")
}

func (s *LedgerStore) list(ctx context.Context, where squirrel.Sqlizer, orderBy ...string) ([]entity.MovementEvent, error) {
	query, args, err := s.builder.Select(movementSelectColumns...).
		From("reg_movements").
		Where(where).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := sqlscan.Select(ctx, s.txm.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	out := make([]entity.MovementEvent, 0, len(rows))
	for _, r := range rows {
		m, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
