package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Postgres error codes the repositories translate.
const (
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
	CodeRaiseException  = "P0001"
)

// BatchInserter bulk-loads rows with the COPY protocol. Serial allocation
// writes up to numbering.max_bulk rows per call through it.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice performs a bulk insert from a slice of rows.
// COPY is all-or-nothing, so it requires a transaction in ctx.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	return t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// QueryRowBatch sends queries in one round-trip and scans one row per query.
// scan is called with the query index and its row.
func (b *BatchInserter) QueryRowBatch(ctx context.Context, queries []BatchQuery, scan func(i int, row pgx.Row) error) error {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("QueryRowBatch requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := t.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if err := scan(i, results.QueryRow()); err != nil {
			return err
		}
	}
	return results.Close()
}

// ErrorCode returns the SQLSTATE and constraint name carried by err.
func ErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// Numeric converts a decimal to its binary-encodable pgtype form. COPY only
// speaks the binary protocol, which has no string path for NUMERIC.
func Numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
