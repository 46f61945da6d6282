// Package ledger_repo provides the PostgreSQL movement ledger.
// reg_movements is insert-only; a trigger rejects UPDATE and DELETE.
package ledger_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "reg_movements"
	requestsTable  = "reg_movement_requests"

	compensationIndex = "reg_movements_compensates_uq"
)

var insertColumns = []string{
	"line_id", "product_id", "direction", "quantity", "mass", "value",
	"batch_number", "serial_number", "transaction_type", "header_id", "detail_id",
	"occurred_at", "recorded_at", "acting_identity", "compensates_line_id",
	"reason", "idempotency_key",
}

var selectColumns = append([]string{"seq"}, insertColumns...)

// Repo implements ledger.Repository and ledger.Reader.
type Repo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	builder  squirrel.StatementBuilderType
}

var (
	_ ledger.Repository = (*Repo)(nil)
	_ ledger.Reader     = (*Repo)(nil)
)

// NewRepo creates a ledger repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert implements ledger.Repository. All rows go out in one round-trip
// and the store sequence comes back through RETURNING.
func (r *Repo) Insert(ctx context.Context, events []entity.MovementEvent) ([]entity.MovementEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING seq",
		movementsTable, strings.Join(insertColumns, ", "), placeholders(len(insertColumns)))

	queries := make([]postgres.BatchQuery, len(events))
	for i, m := range events {
		queries[i] = postgres.BatchQuery{SQL: sql, Args: []any{
			m.LineID, m.ProductID, string(m.Direction), m.Quantity.Int64Scaled(),
			postgres.Numeric(m.Mass), postgres.Numeric(m.Value),
			m.BatchNumber, m.SerialNumber, string(m.TransactionType), m.HeaderID, m.DetailID,
			m.OccurredAt, m.RecordedAt, m.ActingIdentity, m.CompensatesLine,
			m.Reason, m.IdempotencyKey,
		}}
	}

	out := make([]entity.MovementEvent, len(events))
	copy(out, events)
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.inserter.QueryRowBatch(ctx, queries, func(i int, row pgx.Row) error {
			return row.Scan(&out[i].Sequence)
		})
	})
	if err != nil {
		if code, constraint := postgres.ErrorCode(err); code == postgres.CodeUniqueViolation && constraint == compensationIndex {
			return nil, apperror.NewConflict("movement is already compensated").WithCause(err)
		}
		return nil, fmt.Errorf("insert movements: %w", err)
	}
	return out, nil
}

// GetByLineID implements ledger.Repository.
func (r *Repo) GetByLineID(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	m, err := r.getOne(ctx, squirrel.Eq{"line_id": lineID})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperror.NewNotFound("movement", lineID)
	}
	return m, nil
}

// FindCompensation implements ledger.Repository.
func (r *Repo) FindCompensation(ctx context.Context, lineID id.ID) (*entity.MovementEvent, error) {
	return r.getOne(ctx, squirrel.Eq{"compensates_line_id": lineID})
}

func (r *Repo) getOne(ctx context.Context, where squirrel.Sqlizer) (*entity.MovementEvent, error) {
	query, args, err := r.builder.Select(selectColumns...).From(movementsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.MovementEvent
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// SaveRequest implements ledger.Repository.
func (r *Repo) SaveRequest(ctx context.Context, rec ledger.IdempotencyRecord) error {
	query, args, err := r.builder.
		Insert(requestsTable).
		Columns("idempotency_key", "fingerprint", "acting_identity", "line_count", "created_at").
		Values(rec.Key, rec.Fingerprint, rec.ActingIdentity, rec.LineCount, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if code, _ := postgres.ErrorCode(err); code == postgres.CodeUniqueViolation {
			return apperror.NewIdempotencyConflict(rec.Key)
		}
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// GetRequest implements ledger.Repository.
func (r *Repo) GetRequest(ctx context.Context, key string) (*ledger.IdempotencyRecord, error) {
	query, args, err := r.builder.
		Select("idempotency_key", "fingerprint", "acting_identity", "line_count", "created_at").
		From(requestsTable).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec ledger.IdempotencyRecord
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

// ListByIdempotencyKey implements ledger.Repository.
func (r *Repo) ListByIdempotencyKey(ctx context.Context, key string) ([]entity.MovementEvent, error) {
	return r.list(ctx, squirrel.Eq{"idempotency_key": key}, "seq")
}

// Balance implements ledger.Reader.
func (r *Repo) Balance(ctx context.Context, q ledger.BalanceQuery) (types.Quantity, error) {
	where := squirrel.And{squirrel.Eq{"product_id": q.ProductID}}
	if q.BatchNumber != "" {
		where = append(where, squirrel.Eq{"batch_number": q.BatchNumber})
	}
	if q.Exclusive {
		where = append(where, squirrel.Lt{"occurred_at": q.AsOf})
	} else {
		where = append(where, squirrel.LtOrEq{"occurred_at": q.AsOf})
	}

	query, args, err := r.builder.
		Select("COALESCE(SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END), 0)").
		From(movementsTable).
		Where(where).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(total), nil
}

// ListMovements implements ledger.Reader.
func (r *Repo) ListMovements(ctx context.Context, f ledger.MovementFilter) ([]entity.MovementEvent, error) {
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
		where = append(where, squirrel.GtOrEq{"occurred_at": *f.From})
	}
	if f.To != nil {
		where = append(where, squirrel.LtOrEq{"occurred_at": *f.To})
	}
	return r.list(ctx, where, "occurred_at", "seq")
}

func (r *Repo) list(ctx context.Context, where squirrel.Sqlizer, orderBy ...string) ([]entity.MovementEvent, error) {
	query, args, err := r.builder.Select(selectColumns...).From(movementsTable).Where(where).OrderBy(orderBy...).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.MovementEvent
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i)
	}
	return b.String()
}
