package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/sequence"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/numbering"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/registers/stock"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/storage/sqlite"
)

var day = time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC)

type backend struct {
	txm     *sqlite.TxManager
	seq     *sqlite.SequenceStore
	serials *sqlite.SerialStore
	ledger  *sqlite.LedgerStore
	events  *sqlite.EventStore
}

func openBackend(t *testing.T) *backend {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "traceledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	txm := sqlite.NewTxManager(db)
	return &backend{
		txm:     txm,
		seq:     sqlite.NewSequenceStore(txm),
		serials: sqlite.NewSerialStore(txm),
		ledger:  sqlite.NewLedgerStore(txm),
		events:  sqlite.NewEventStore(txm),
	}
}

func TestSequenceStore_ReserveIsContiguous(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	scope := entity.BatchScope(1, entity.BatchTypeProduction, day)

	for want := int64(1); want <= 3; want++ {
		got, err := b.seq.Reserve(ctx, []sequence.Request{{Scope: scope, Count: 1, Max: 9999}}, "alice")
		require.NoError(t, err)
		assert.Equal(t, want, got[0].First)
		assert.Equal(t, want, got[0].Last)
	}

	c, err := b.seq.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.CurrentValue)
	assert.Equal(t, "alice", c.LastGeneratedBy)
	assert.Equal(t, string(entity.BatchTypeProduction), c.BatchType)
	assert.True(t, c.ScopeDate.Equal(day))
}

func TestSequenceStore_ExhaustionRollsBackEveryScope(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	unit := entity.SerialUnitScope(1, entity.BatchTypeProduction, 1, day)
	daily := entity.SerialDailyScope(1, day)

	_, err := b.seq.Reserve(ctx, []sequence.Request{{Scope: unit, Count: 8, Max: 10}}, "alice")
	require.NoError(t, err)

	_, err = b.seq.Reserve(ctx, []sequence.Request{
		{Scope: daily, Count: 3, Max: 99999},
		{Scope: unit, Count: 3, Max: 10},
	}, "bob")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeExhausted))

	c, err := b.seq.Get(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, int64(8), c.CurrentValue)
	assert.Equal(t, "alice", c.LastGeneratedBy)

	_, err = b.seq.Get(ctx, daily)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSequenceStore_AdvanceToNeverMovesBackwards(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	scope := entity.BatchScope(7, entity.BatchTypeHarvest, day)

	c, err := b.seq.AdvanceTo(ctx, scope, 120, 9999, "migrator")
	require.NoError(t, err)
	assert.Equal(t, int64(120), c.CurrentValue)

	c, err = b.seq.AdvanceTo(ctx, scope, 50, 9999, "migrator")
	require.NoError(t, err)
	assert.Equal(t, int64(120), c.CurrentValue)

	got, err := b.seq.Reserve(ctx, []sequence.Request{{Scope: scope, Count: 1, Max: 9999}}, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(121), got[0].First)
}

func TestSerialStore_DuplicateCodeFailsWholeBatch(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	sn := entity.SerialNumber{
		FullCode:       "00100OG1020251206000100001000350001",
		ShortCode:      "001251206000011",
		BatchNumber:    "00110202512060001",
		SiteID:         1,
		BatchType:      entity.BatchTypeProduction,
		ProductionDate: day,
		BatchSequence:  1,
		UnitSequence:   1,
		DailySequence:  1,
		StrainCode:     "00OG",
		Weight:         decimal.RequireFromString("3.5"),
		PackQty:        1,
		Status:         entity.SerialCreated,
		CreatedBy:      "alice",
		CreatedAt:      day,
	}
	require.NoError(t, b.serials.CreateBatch(ctx, []entity.SerialNumber{sn}))

	other := sn
	other.FullCode = "00100OG1020251206000100002000350001"
	other.UnitSequence = 2
	clash := other
	clash.ShortCode = sn.ShortCode
	clash.FullCode = "00100OG1020251206000100003000350001"

	err := b.serials.CreateBatch(ctx, []entity.SerialNumber{other, clash})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateIdentifier))

	found, err := b.serials.FindExisting(ctx, []string{sn.FullCode, other.FullCode}, []string{sn.ShortCode})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sn.FullCode, sn.ShortCode}, found)

	got, err := b.serials.FindByCode(ctx, sn.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, sn.FullCode, got.FullCode)
	assert.True(t, got.Weight.Equal(sn.Weight))
	assert.Nil(t, got.ProductID)
}

func TestSerialStore_UpdateStatusIsOptimistic(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	deps := numbering.Deps{Store: b.seq, TxManager: b.txm, Audit: b.events, Events: b.events}
	alloc := numbering.NewSerialAllocator(deps, b.serials)

	sn, err := alloc.Allocate(ctx, entity.SerialScope{SiteID: 1, ProductionDate: day, BatchType: entity.BatchTypeProduction, BatchSequence: 1},
		entity.SerialAttributes{StrainCode: "OG", Weight: decimal.RequireFromString("1"), PackQty: 1}, "alice")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, b.serials.UpdateStatus(ctx, sn.FullCode, entity.SerialCreated, entity.SerialAssigned, "bob", now))

	err = b.serials.UpdateStatus(ctx, sn.FullCode, entity.SerialCreated, entity.SerialDestroyed, "carol", now)
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))

	err = b.serials.UpdateStatus(ctx, "00100OG1020251206000199999000350001", entity.SerialCreated, entity.SerialAssigned, "bob", now)
	assert.True(t, apperror.IsNotFound(err))
}

func TestEndToEnd_AllocateAppendAndDerive(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	deps := numbering.Deps{Store: b.seq, TxManager: b.txm, Audit: b.events, Events: b.events}
	batch, err := numbering.NewBatchAllocator(deps).Allocate(ctx, 1, entity.BatchTypeProduction, day, "alice")
	require.NoError(t, err)
	assert.Equal(t, "00110202512060001", batch.Code)

	serialList, err := numbering.NewSerialAllocator(deps, b.serials).AllocateBulk(ctx,
		entity.SerialScope{SiteID: 1, ProductionDate: day, BatchType: entity.BatchTypeProduction, BatchSequence: batch.Sequence},
		3, entity.SerialAttributes{StrainCode: "OG", Weight: decimal.RequireFromString("3.5"), PackQty: 1}, "alice")
	require.NoError(t, err)
	require.Len(t, serialList, 3)

	registry := serials.NewRegistry(b.serials, b.txm, b.events, nil)
	svc := ledger.NewService(ledger.Config{Repo: b.ledger, Serials: registry, TxManager: b.txm, Events: b.events})

	t0 := day.Add(8 * time.Hour)
	res, err := svc.AppendBatch(ctx, ledger.AppendRequest{
		IdempotencyKey: "receipt-1",
		Movements: []ledger.Movement{{
			ProductID: "P-1", Direction: entity.DirectionIn, Quantity: types.NewQuantity(100),
			BatchNumber: batch.Code, TransactionType: entity.TxGoodsReceipt,
			HeaderID: "GR-1", DetailID: "1", OccurredAt: t0,
		}},
	}, "alice")
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Positive(t, res.Events[0].Sequence)

	sale, err := svc.Append(ctx, ledger.Movement{
		ProductID: "P-1", Direction: entity.DirectionOut, Quantity: types.NewQuantity(30),
		SerialNumber: serialList[0].ShortCode, TransactionType: entity.TxSale,
		HeaderID: "S-1", DetailID: "1", OccurredAt: t0.Add(time.Hour),
	}, "bob")
	require.NoError(t, err)
	require.NotNil(t, sale.SerialNumber)
	assert.Equal(t, serialList[0].FullCode, *sale.SerialNumber)
	require.NotNil(t, sale.BatchNumber)
	assert.Equal(t, batch.Code, *sale.BatchNumber)

	calc := stock.NewCalculator(b.ledger, b.txm)
	soh, err := calc.SOHAsOf(ctx, "P-1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(70), soh)

	_, err = svc.Compensate(ctx, sale.LineID, "scanned wrong item", "bob", nil)
	require.NoError(t, err)
	soh, err = calc.CurrentSOH(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(100), soh)

	_, err = svc.Compensate(ctx, sale.LineID, "again", "bob", nil)
	require.Error(t, err)

	replayed, err := svc.AppendBatch(ctx, ledger.AppendRequest{
		IdempotencyKey: "receipt-1",
		Movements: []ledger.Movement{{
			ProductID: "P-1", Direction: entity.DirectionIn, Quantity: types.NewQuantity(100),
			BatchNumber: batch.Code, TransactionType: entity.TxGoodsReceipt,
			HeaderID: "GR-1", DetailID: "1", OccurredAt: t0,
		}},
	}, "alice")
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, res.Events[0].LineID, replayed.Events[0].LineID)

	pending, err := b.events.PendingEvents(ctx)
	require.NoError(t, err)
	assert.Positive(t, pending)
}

func TestLedgerStore_RejectsSecondCompensation(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	orig := entity.MovementEvent{
		LineID: id.New(), ProductID: "P-1", Direction: entity.DirectionIn, Quantity: types.NewQuantity(5),
		TransactionType: entity.TxGoodsReceipt, HeaderID: "GR-1", DetailID: "1",
		OccurredAt: day, RecordedAt: day, ActingIdentity: "alice",
	}
	_, err := b.ledger.Insert(ctx, []entity.MovementEvent{orig})
	require.NoError(t, err)

	first := orig.Compensation("wrong qty", "bob", day.Add(time.Minute))
	first.LineID = id.New()
	first.RecordedAt = day
	_, err = b.ledger.Insert(ctx, []entity.MovementEvent{first})
	require.NoError(t, err)

	second := orig.Compensation("wrong qty", "bob", day.Add(time.Minute))
	second.LineID = id.New()
	second.RecordedAt = day
	_, err = b.ledger.Insert(ctx, []entity.MovementEvent{second})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	rows, err := b.ledger.ListMovements(ctx, ledger.MovementFilter{ProductID: "P-1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, orig.LineID, rows[0].LineID)
	require.NotNil(t, rows[1].CompensatesLine)
	assert.Equal(t, orig.LineID, *rows[1].CompensatesLine)
}
