package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/sequence"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/infrastructure/storage/sqlite"
)

func newMock(t *testing.T) (*sqlite.TxManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewTxManager(db), mock
}

func TestSequenceStore_ExhaustionReportsCurrentValue(t *testing.T) {
	txm, mock := newMock(t)
	store := sqlite.NewSequenceStore(txm)
	scope := entity.BatchScope(1, entity.BatchTypeProduction, day)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sys_sequence_counters").
		WillReturnRows(sqlmock.NewRows([]string{"current_value"}))
	mock.ExpectQuery("SELECT (.+) FROM sys_sequence_counters").
		WillReturnRows(sqlmock.NewRows([]string{
			"scope_key", "purpose", "site_id", "batch_type", "batch_sequence", "scope_date",
			"current_value", "max_value", "last_generated_by", "last_generated_at", "created_at",
		}).AddRow(scope.String(), "BATCH", 1, "PRODUCTION", 0, "2025-12-06",
			int64(9999), int64(9999), "alice", int64(0), int64(0)))
	mock.ExpectRollback()

	_, err := store.Reserve(context.Background(), []sequence.Request{{Scope: scope, Count: 1, Max: 9999}}, "bob")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeExhausted, appErr.Code)
	assert.Equal(t, int64(9999), appErr.Details["current"])
	assert.Equal(t, int64(1), appErr.Details["requested"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceStore_DriverErrorRollsBack(t *testing.T) {
	txm, mock := newMock(t)
	store := sqlite.NewSequenceStore(txm)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sys_sequence_counters").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := store.Reserve(context.Background(), []sequence.Request{
		{Scope: entity.SerialDailyScope(1, day), Count: 5, Max: 99999},
	}, "alice")
	require.Error(t, err)
	assert.False(t, apperror.IsAppError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_StoreRejectionIsLedgerWriteFailed(t *testing.T) {
	txm, mock := newMock(t)
	svc := ledger.NewService(ledger.Config{Repo: sqlite.NewLedgerStore(txm), TxManager: txm})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reg_movements").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := svc.AppendBatch(context.Background(), ledger.AppendRequest{Movements: []ledger.Movement{{
		ProductID: "P-1", Direction: entity.DirectionIn, Quantity: types.NewQuantity(1),
		TransactionType: entity.TxGoodsReceipt, HeaderID: "GR-1", DetailID: "1", OccurredAt: day,
	}}}, "alice")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeLedgerWriteFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}
