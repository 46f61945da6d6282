// Package stock derives stock on hand from the movement ledger. Nothing here
// writes; every figure is a fold over ledger rows.
package stock

import (
	"context"
	"fmt"
	"time"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/tx"
	"traceledger/internal/core/types"
	"traceledger/internal/domain/registers/ledger"
)

// Calculator answers stock on hand questions.
type Calculator struct {
	reader ledger.Reader
	txm    tx.ReadOnlyManager
	now    func() time.Time
}

// NewCalculator creates a stock calculator.
func NewCalculator(reader ledger.Reader, txm tx.ReadOnlyManager) *Calculator {
	return &Calculator{
		reader: reader,
		txm:    txm,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CurrentSOH returns stock on hand for every movement that has occurred by now.
func (c *Calculator) CurrentSOH(ctx context.Context, productID string) (types.Quantity, error) {
	return c.SOHAsOf(ctx, productID, c.now())
}

// SOHAsOf returns Σ IN − Σ OUT over movements with occurredAt ≤ asOf.
func (c *Calculator) SOHAsOf(ctx context.Context, productID string, asOf time.Time) (types.Quantity, error) {
	return c.BatchSOH(ctx, productID, "", asOf)
}

// BatchSOH is SOHAsOf restricted to one batch. An empty batch means all.
func (c *Calculator) BatchSOH(ctx context.Context, productID, batchNumber string, asOf time.Time) (types.Quantity, error) {
	if productID == "" {
		return 0, apperror.NewValidation("product id is required")
	}
	q, err := c.reader.Balance(ctx, ledger.BalanceQuery{
		ProductID:   productID,
		BatchNumber: batchNumber,
		AsOf:        asOf.UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("stock balance %s: %w", productID, err)
	}
	return q, nil
}

// TimelineEntry is one ledger row with its effect on the running balance.
type TimelineEntry struct {
	Movement entity.MovementEvent `json:"movement"`
	Delta    types.Quantity       `json:"delta"`
	Balance  types.Quantity       `json:"balance"`
}

// Replay is the balance history of a product over a window.
type Replay struct {
	ProductID      string          `json:"productId"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance types.Quantity  `json:"openingBalance"`
	ClosingBalance types.Quantity  `json:"closingBalance"`
	Timeline       []TimelineEntry `json:"timeline"`
}

// Replay returns the opening balance at from and every movement in
// [from, to] with the running balance after it. ClosingBalance always equals
// SOHAsOf(to).
func (c *Calculator) Replay(ctx context.Context, productID string, from, to time.Time) (*Replay, error) {
	if err := checkWindow(productID, from, to); err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	out := &Replay{ProductID: productID, From: from, To: to}
	err := c.txm.ReadOnly(ctx, func(ctx context.Context) error {
		opening, err := c.reader.Balance(ctx, ledger.BalanceQuery{ProductID: productID, AsOf: from, Exclusive: true})
		if err != nil {
			return fmt.Errorf("opening balance: %w", err)
		}
		rows, err := c.reader.ListMovements(ctx, ledger.MovementFilter{ProductID: productID, From: &from, To: &to})
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}

		out.OpeningBalance = opening
		running := opening
		out.Timeline = make([]TimelineEntry, 0, len(rows))
		for _, m := range rows {
			delta := m.SignedQuantity()
			running += delta
			out.Timeline = append(out.Timeline, TimelineEntry{Movement: m, Delta: delta, Balance: running})
		}
		out.ClosingBalance = running
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Turnover returns opening, receipt, expense and closing for [from, to].
// batchNumber narrows the report to one batch when not empty.
func (c *Calculator) Turnover(ctx context.Context, productID, batchNumber string, from, to time.Time) (*entity.StockTurnover, error) {
	if err := checkWindow(productID, from, to); err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	out := &entity.StockTurnover{ProductID: productID, From: from, To: to}
	if batchNumber != "" {
		out.BatchNumber = &batchNumber
	}
	err := c.txm.ReadOnly(ctx, func(ctx context.Context) error {
		opening, err := c.reader.Balance(ctx, ledger.BalanceQuery{
			ProductID:   productID,
			BatchNumber: batchNumber,
			AsOf:        from,
			Exclusive:   true,
		})
		if err != nil {
			return fmt.Errorf("opening balance: %w", err)
		}
		rows, err := c.reader.ListMovements(ctx, ledger.MovementFilter{
			ProductID:   productID,
			BatchNumber: batchNumber,
			From:        &from,
			To:          &to,
		})
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}

		out.OpeningBalance = opening
		for _, m := range rows {
			if m.Direction == entity.DirectionIn {
				out.Receipt += m.Quantity
			} else {
				out.Expense += m.Quantity
			}
		}
		out.ClosingBalance = opening + out.Receipt - out.Expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkWindow(productID string, from, to time.Time) error {
	if productID == "" {
		return apperror.NewValidation("product id is required")
	}
	if from.IsZero() || to.IsZero() {
		return apperror.NewValidation("from and to are required")
	}
	if to.Before(from) {
		return apperror.NewValidation("to must not be before from")
	}
	return nil
}
