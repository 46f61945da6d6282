// Package memory provides in-process storage backends. They back unit tests
// and single-process demo deployments; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"traceledger/internal/core/tx"
)

type txKey struct{}

type readKey struct{}

type txState struct {
	undo   []func()
	commit []func()
}

// TxManager serialises write transactions. Changes made inside a failed one
// are undone in reverse order; changes made inside a successful one become
// visible to other readers only when it returns.
type TxManager struct {
	mu sync.RWMutex
}

// NewTxManager creates a memory transaction manager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer one.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		return err
	}
	for _, f := range st.commit {
		f()
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. fn observes one committed state:
// no write transaction can commit while it runs.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) || ctx.Value(readKey{}) != nil {
		return fn(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(context.WithValue(ctx, readKey{}, true))
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// onRollback registers f to run if the transaction in ctx fails.
// Outside a transaction the change is final and f is dropped.
func onRollback(ctx context.Context, f func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, f)
	}
}

// onCommit registers f to run when the transaction in ctx succeeds.
// Outside a transaction f runs immediately.
func onCommit(ctx context.Context, f func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.commit = append(st.commit, f)
		return
	}
	f()
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)
