package serials_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/domain/numbering"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/storage/memory"
)

func setup(t *testing.T) (*serials.Registry, *memory.EventLog, entity.SerialNumber) {
	t.Helper()
	store := memory.NewSerialStore()
	txm := memory.NewTxManager()
	log := memory.NewEventLog()

	alloc := numbering.NewSerialAllocator(numbering.Deps{Store: memory.NewSequenceStore(), TxManager: txm}, store)
	sn, err := alloc.Allocate(context.Background(), entity.SerialScope{
		SiteID:         1,
		ProductionDate: time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC),
		BatchType:      entity.BatchTypeProduction,
		BatchSequence:  1,
	}, entity.SerialAttributes{Weight: decimal.RequireFromString("3.5"), PackQty: 1}, "clerk")
	require.NoError(t, err)

	return serials.NewRegistry(store, txm, log, nil), log, *sn
}

func TestLookup_ShortAndFull(t *testing.T) {
	reg, _, sn := setup(t)
	ctx := context.Background()

	byShort, err := reg.Lookup(ctx, sn.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, sn.FullCode, byShort.FullCode)

	byFull, err := reg.Lookup(ctx, sn.FullCode)
	require.NoError(t, err)
	assert.Equal(t, sn.ShortCode, byFull.ShortCode)

	_, err = reg.Lookup(ctx, "00100001020251206000100099000350001")
	assert.True(t, apperror.IsNotFound(err))

	bad := []byte(sn.ShortCode)
	bad[14] = '0' + (bad[14]-'0'+1)%10
	_, err = reg.Lookup(ctx, string(bad))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = reg.Lookup(ctx, "nope")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestTransitionStatus_FollowsGraph(t *testing.T) {
	reg, log, sn := setup(t)
	ctx := context.Background()

	for _, next := range []entity.SerialStatus{entity.SerialAssigned, entity.SerialInStock, entity.SerialQuarantined, entity.SerialInStock, entity.SerialSold} {
		got, err := reg.TransitionStatus(ctx, sn.ShortCode, next, "step", "clerk")
		require.NoError(t, err, "to %s", next)
		assert.Equal(t, next, got.Status)
		assert.Equal(t, "clerk", *got.StatusChangedBy)
	}

	_, err := reg.TransitionStatus(ctx, sn.FullCode, entity.SerialInStock, "undo sale", "clerk")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)
	assert.Equal(t, "SOLD", appErr.Details["from"])

	history, err := reg.History(ctx, sn.FullCode)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, entity.SerialCreated, history[0].FromStatus)
	assert.Equal(t, entity.SerialSold, history[4].ToStatus)
	assert.Len(t, log.Events(), 5)

	stored, err := reg.Lookup(ctx, sn.FullCode)
	require.NoError(t, err)
	assert.Equal(t, entity.SerialSold, stored.Status)
}

func TestTransitionStatus_Rejected(t *testing.T) {
	reg, _, sn := setup(t)
	ctx := context.Background()

	_, err := reg.TransitionStatus(ctx, sn.FullCode, entity.SerialSold, "", "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	_, err = reg.TransitionStatus(ctx, sn.FullCode, entity.SerialStatus("LOST"), "", "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = reg.TransitionStatus(ctx, sn.FullCode, entity.SerialAssigned, "", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	history, err := reg.History(ctx, sn.FullCode)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransitionStatus_ConcurrentOnlyOneWins(t *testing.T) {
	reg, _, sn := setup(t)
	ctx := context.Background()

	const n = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.TransitionStatus(ctx, sn.FullCode, entity.SerialAssigned, "", "station")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				bad++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, bad)
	history, err := reg.History(ctx, sn.FullCode)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStatusGraph(t *testing.T) {
	assert.True(t, entity.SerialSold.IsTerminal())
	assert.True(t, entity.SerialDestroyed.IsTerminal())
	assert.False(t, entity.SerialQuarantined.IsTerminal())
	assert.True(t, entity.SerialQuarantined.CanTransitionTo(entity.SerialInStock))
	assert.True(t, entity.SerialQuarantined.CanTransitionTo(entity.SerialRecalled))
	assert.False(t, entity.SerialCreated.CanTransitionTo(entity.SerialSold))
}
