package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/numbering"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/storage/memory"
)

var t0 = time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC)

type harness struct {
	store   *memory.LedgerStore
	serials *memory.SerialStore
	log     *memory.EventLog
	txm     *memory.TxManager
	svc     *ledger.Service
}

func newHarness() *harness {
	h := &harness{
		store:   memory.NewLedgerStore(),
		serials: memory.NewSerialStore(),
		log:     memory.NewEventLog(),
		txm:     memory.NewTxManager(),
	}
	registry := serials.NewRegistry(h.serials, h.txm, h.log, nil)
	h.svc = ledger.NewService(ledger.Config{
		Repo:      h.store,
		Serials:   registry,
		TxManager: h.txm,
		Events:    h.log,
		Now:       func() time.Time { return t0.Add(time.Hour) },
	})
	return h
}

func movement(dir entity.Direction, qty int64, at time.Time) ledger.Movement {
	return ledger.Movement{
		ProductID:       "P-1",
		Direction:       dir,
		Quantity:        types.NewQuantity(qty),
		Mass:            decimal.Zero,
		Value:           decimal.RequireFromString("10.00"),
		BatchNumber:     "00110202512060001",
		TransactionType: entity.TxGoodsReceipt,
		HeaderID:        "GR-1",
		DetailID:        "1",
		OccurredAt:      at,
	}
}

func TestAppend_AssignsIdentityAndSequence(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	ev, err := h.svc.Append(ctx, movement(entity.DirectionIn, 100, t0), "clerk")
	require.NoError(t, err)

	assert.False(t, id.IsNil(ev.LineID))
	assert.EqualValues(t, 1, ev.Sequence)
	assert.Equal(t, "clerk", ev.ActingIdentity)
	assert.Equal(t, t0.Add(time.Hour), ev.RecordedAt)
	require.NotNil(t, ev.BatchNumber)
	assert.Equal(t, "00110202512060001", *ev.BatchNumber)
	assert.Len(t, h.log.Events(), 1)
}

func TestAppendBatch_OneInvalidRowRejectsAll(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	bad := movement(entity.DirectionOut, 0, t0)
	_, err := h.svc.AppendBatch(ctx, ledger.AppendRequest{
		Movements: []ledger.Movement{movement(entity.DirectionIn, 5, t0), bad},
	}, "clerk")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	rows, err := h.store.ListMovements(ctx, ledger.MovementFilter{ProductID: "P-1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAppendBatch_RejectsMalformedRows(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	noProduct := movement(entity.DirectionIn, 1, t0)
	noProduct.ProductID = ""
	badDir := movement(entity.DirectionIn, 1, t0)
	badDir.Direction = "SIDEWAYS"
	badType := movement(entity.DirectionIn, 1, t0)
	badType.TransactionType = "GIFT"
	noTime := movement(entity.DirectionIn, 1, time.Time{})
	badBatch := movement(entity.DirectionIn, 1, t0)
	badBatch.BatchNumber = "12345"
	negMass := movement(entity.DirectionIn, 1, t0)
	negMass.Mass = decimal.RequireFromString("-1")
	unknownSerial := movement(entity.DirectionIn, 1, t0)
	unknownSerial.SerialNumber = "00100OG1020251206000100042000350001"

	for name, m := range map[string]ledger.Movement{
		"product": noProduct, "direction": badDir, "type": badType, "time": noTime,
		"batch": badBatch, "mass": negMass, "serial": unknownSerial,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Append(ctx, m, "clerk")
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}

	_, err := h.svc.Append(ctx, movement(entity.DirectionIn, 1, t0), "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	_, err = h.svc.AppendBatch(ctx, ledger.AppendRequest{}, "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

type brokenRepo struct {
	*memory.LedgerStore
}

func (brokenRepo) Insert(context.Context, []entity.MovementEvent) ([]entity.MovementEvent, error) {
	return nil, errors.New("disk full")
}

func TestAppendBatch_StoreFailureIsLedgerWriteFailed(t *testing.T) {
	h := newHarness()
	svc := ledger.NewService(ledger.Config{
		Repo:      brokenRepo{h.store},
		TxManager: h.txm,
		Events:    h.log,
	})

	_, err := svc.AppendBatch(context.Background(), ledger.AppendRequest{
		IdempotencyKey: "k-1",
		Movements:      []ledger.Movement{movement(entity.DirectionIn, 1, t0)},
	}, "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeLedgerWriteFailed), "got %v", err)

	rec, err := h.store.GetRequest(context.Background(), "k-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "idempotency record must roll back with the failed append")
	assert.Empty(t, h.log.Events())
}

func TestAppendBatch_Idempotency(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := ledger.AppendRequest{
		IdempotencyKey: "sale-42",
		Movements: []ledger.Movement{
			movement(entity.DirectionIn, 10, t0),
			movement(entity.DirectionIn, 20, t0),
		},
	}

	first, err := h.svc.AppendBatch(ctx, req, "clerk")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.svc.AppendBatch(ctx, req, "clerk")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	require.Len(t, again.Events, 2)
	assert.Equal(t, first.Events[0].LineID, again.Events[0].LineID)

	changed := req
	changed.Movements = []ledger.Movement{movement(entity.DirectionIn, 99, t0)}
	_, err = h.svc.AppendBatch(ctx, changed, "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency), "got %v", err)

	rows, err := h.store.ListMovements(ctx, ledger.MovementFilter{ProductID: "P-1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCompensate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	orig, err := h.svc.Append(ctx, movement(entity.DirectionIn, 100, t0), "clerk")
	require.NoError(t, err)

	comp, err := h.svc.Compensate(ctx, orig.LineID, "keyed twice", "supervisor", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionOut, comp.Direction)
	assert.Equal(t, orig.Quantity, comp.Quantity)
	assert.Equal(t, orig.HeaderID, comp.HeaderID)
	assert.Equal(t, *orig.BatchNumber, *comp.BatchNumber)
	require.NotNil(t, comp.CompensatesLine)
	assert.Equal(t, orig.LineID, *comp.CompensatesLine)
	assert.Equal(t, "keyed twice", *comp.Reason)
	assert.Equal(t, "supervisor", comp.ActingIdentity)

	stored, err := h.store.GetByLineID(ctx, orig.LineID)
	require.NoError(t, err)
	assert.Equal(t, *orig, *stored, "original row is never altered")

	_, err = h.svc.Compensate(ctx, orig.LineID, "again", "supervisor", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict), "got %v", err)

	undo, err := h.svc.Compensate(ctx, comp.LineID, "reversal was wrong", "supervisor", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionIn, undo.Direction)

	_, err = h.svc.Compensate(ctx, orig.LineID, "", "supervisor", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCompensate_UnknownLine(t *testing.T) {
	h := newHarness()
	first, err := h.svc.Append(context.Background(), movement(entity.DirectionIn, 1, t0), "clerk")
	require.NoError(t, err)

	other := newHarness()
	_, err = other.svc.Compensate(context.Background(), first.LineID, "r", "clerk", nil)
	assert.True(t, apperror.IsNotFound(err))
}

func TestAppend_SerialIsCanonicalised(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alloc := numbering.NewSerialAllocator(numbering.Deps{
		Store:     memory.NewSequenceStore(),
		TxManager: h.txm,
	}, h.serials)
	sn, err := alloc.Allocate(ctx, entity.SerialScope{
		SiteID: 1, ProductionDate: t0, BatchType: entity.BatchTypeProduction, BatchSequence: 1,
	}, entity.SerialAttributes{Weight: decimal.RequireFromString("1"), PackQty: 1}, "clerk")
	require.NoError(t, err)

	m := movement(entity.DirectionIn, 1, t0)
	m.BatchNumber = ""
	m.SerialNumber = sn.ShortCode
	ev, err := h.svc.Append(ctx, m, "clerk")
	require.NoError(t, err)
	assert.Equal(t, sn.FullCode, *ev.SerialNumber)
	assert.Equal(t, sn.BatchNumber, *ev.BatchNumber)

	m.BatchNumber = "00110202512060009"
	_, err = h.svc.Append(ctx, m, "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
