package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/registers/stock"
	"traceledger/internal/infrastructure/storage/memory"
)

var (
	t1 = time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(2 * time.Hour)
)

func setup() (*ledger.Service, *stock.Calculator) {
	store := memory.NewLedgerStore()
	txm := memory.NewTxManager()
	svc := ledger.NewService(ledger.Config{Repo: store, TxManager: txm})
	return svc, stock.NewCalculator(store, txm)
}

func mv(dir entity.Direction, qty int64, at time.Time, batch string) ledger.Movement {
	return ledger.Movement{
		ProductID:       "P",
		Direction:       dir,
		Quantity:        types.NewQuantity(qty),
		Mass:            decimal.Zero,
		Value:           decimal.Zero,
		BatchNumber:     batch,
		TransactionType: entity.TxAdjustment,
		HeaderID:        "H",
		DetailID:        "D",
		OccurredAt:      at,
	}
}

func TestSOH_InThenOut(t *testing.T) {
	svc, calc := setup()
	ctx := context.Background()

	_, err := svc.Append(ctx, mv(entity.DirectionIn, 100, t1, ""), "clerk")
	require.NoError(t, err)
	_, err = svc.Append(ctx, mv(entity.DirectionOut, 30, t2, ""), "clerk")
	require.NoError(t, err)

	soh, err := calc.CurrentSOH(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(70), soh)

	asOf, err := calc.SOHAsOf(ctx, "P", t1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(100), asOf)

	before, err := calc.SOHAsOf(ctx, "P", t1.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, before.IsZero())
}

func TestSOH_CompensationRestoresBalance(t *testing.T) {
	svc, calc := setup()
	ctx := context.Background()

	_, err := svc.Append(ctx, mv(entity.DirectionIn, 40, t1, ""), "clerk")
	require.NoError(t, err)
	before, err := calc.CurrentSOH(ctx, "P")
	require.NoError(t, err)

	wrong, err := svc.Append(ctx, mv(entity.DirectionOut, 15, t2, ""), "clerk")
	require.NoError(t, err)
	_, err = svc.Compensate(ctx, wrong.LineID, "miscount", "supervisor", nil)
	require.NoError(t, err)

	after, err := calc.CurrentSOH(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReplay_ConsistentWithSOH(t *testing.T) {
	svc, calc := setup()
	ctx := context.Background()

	steps := []struct {
		dir entity.Direction
		qty int64
		at  time.Time
	}{
		{entity.DirectionIn, 50, t1},
		{entity.DirectionOut, 5, t1.Add(time.Minute)},
		{entity.DirectionIn, 12, t1.Add(30 * time.Minute)},
		{entity.DirectionOut, 20, t2},
		{entity.DirectionOut, 1, t2.Add(time.Hour)},
	}
	// appended out of chronological order on purpose
	for i := len(steps) - 1; i >= 0; i-- {
		_, err := svc.Append(ctx, mv(steps[i].dir, steps[i].qty, steps[i].at, ""), "clerk")
		require.NoError(t, err)
	}

	from := t1.Add(time.Minute)
	to := t2.Add(time.Hour)
	r, err := calc.Replay(ctx, "P", from, to)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(50), r.OpeningBalance)
	require.Len(t, r.Timeline, 4)

	running := r.OpeningBalance
	for i, e := range r.Timeline {
		running += e.Delta
		assert.Equal(t, running, e.Balance)
		asOf, err := calc.SOHAsOf(ctx, "P", e.Movement.OccurredAt)
		require.NoError(t, err)
		assert.Equal(t, asOf, e.Balance, "entry %d", i)
		if i > 0 {
			assert.False(t, e.Movement.OccurredAt.Before(r.Timeline[i-1].Movement.OccurredAt))
		}
	}

	soh, err := calc.SOHAsOf(ctx, "P", to)
	require.NoError(t, err)
	assert.Equal(t, soh, r.ClosingBalance)
	assert.Equal(t, types.NewQuantity(36), soh)
}

func TestTurnoverAndBatchSOH(t *testing.T) {
	svc, calc := setup()
	ctx := context.Background()
	const batchA, batchB = "00110202512060001", "00110202512060002"

	for _, m := range []ledger.Movement{
		mv(entity.DirectionIn, 10, t1.Add(-time.Hour), batchA),
		mv(entity.DirectionIn, 30, t1, batchA),
		mv(entity.DirectionIn, 7, t1, batchB),
		mv(entity.DirectionOut, 4, t2, batchA),
	} {
		_, err := svc.Append(ctx, m, "clerk")
		require.NoError(t, err)
	}

	a, err := calc.BatchSOH(ctx, "P", batchA, t2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(36), a)

	tr, err := calc.Turnover(ctx, "P", batchA, t1, t2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), tr.OpeningBalance)
	assert.Equal(t, types.NewQuantity(30), tr.Receipt)
	assert.Equal(t, types.NewQuantity(4), tr.Expense)
	assert.Equal(t, types.NewQuantity(36), tr.ClosingBalance)

	all, err := calc.Turnover(ctx, "P", "", t1, t2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(43), all.ClosingBalance)
}

func TestValidation(t *testing.T) {
	_, calc := setup()
	ctx := context.Background()

	_, err := calc.CurrentSOH(ctx, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	_, err = calc.Replay(ctx, "P", t2, t1)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	_, err = calc.Turnover(ctx, "P", "", time.Time{}, t1)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
