// Package entity provides core domain entities.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
)

// Direction is the sign of a movement.
type Direction string

const (
	// DirectionIn increases stock on hand.
	DirectionIn Direction = "IN"
	// DirectionOut decreases stock on hand.
	DirectionOut Direction = "OUT"
)

// IsValid reports whether d is IN or OUT.
func (d Direction) IsValid() bool { return d == DirectionIn || d == DirectionOut }

// Opposite returns the compensating direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// TransactionType names the business transaction behind a movement.
type TransactionType string

const (
	TxSale             TransactionType = "SALE"
	TxRefund           TransactionType = "REFUND"
	TxGoodsReceipt     TransactionType = "GOODS_RECEIPT"
	TxProductionInput  TransactionType = "PRODUCTION_INPUT"
	TxProductionOutput TransactionType = "PRODUCTION_OUTPUT"
	TxTransferOut      TransactionType = "TRANSFER_OUT"
	TxTransferIn       TransactionType = "TRANSFER_IN"
	TxAdjustment       TransactionType = "ADJUSTMENT"
	TxDestruction      TransactionType = "DESTRUCTION"
	TxReturn           TransactionType = "RETURN"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxSale, TxRefund, TxGoodsReceipt, TxProductionInput, TxProductionOutput,
		TxTransferOut, TxTransferIn, TxAdjustment, TxDestruction, TxReturn:
		return true
	}
	return false
}

// MovementEvent is one immutable row of the movement ledger.
// Rows are never updated or deleted; corrections are compensating rows.
type MovementEvent struct {
	LineID          id.ID           `db:"line_id" json:"lineId"`
	Sequence        int64           `db:"seq" json:"sequence"`
	ProductID       string          `db:"product_id" json:"productId"`
	Direction       Direction       `db:"direction" json:"direction"`
	Quantity        types.Quantity  `db:"quantity" json:"quantity"`
	Mass            decimal.Decimal `db:"mass" json:"mass"`
	Value           types.Money     `db:"value" json:"value"`
	BatchNumber     *string         `db:"batch_number" json:"batchNumber,omitempty"`
	SerialNumber    *string         `db:"serial_number" json:"serialNumber,omitempty"`
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`
	HeaderID        string          `db:"header_id" json:"headerId"`
	DetailID        string          `db:"detail_id" json:"detailId"`
	OccurredAt      time.Time       `db:"occurred_at" json:"occurredAt"`
	RecordedAt      time.Time       `db:"recorded_at" json:"recordedAt"`
	ActingIdentity  string          `db:"acting_identity" json:"actingIdentity"`
	CompensatesLine *id.ID          `db:"compensates_line_id" json:"compensatesLineId,omitempty"`
	Reason          *string         `db:"reason" json:"reason,omitempty"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"idempotencyKey,omitempty"`
}

// SignedQuantity returns quantity with sign based on direction.
func (m *MovementEvent) SignedQuantity() types.Quantity {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// IsCompensation reports whether the row reverses another row.
func (m *MovementEvent) IsCompensation() bool {
	return m.CompensatesLine != nil
}

// Compensation builds the reversing row for m. Identity fields are assigned
// by the ledger on append.
func (m *MovementEvent) Compensation(reason, actingIdentity string, occurredAt time.Time) MovementEvent {
	orig := m.LineID
	return MovementEvent{
		ProductID:       m.ProductID,
		Direction:       m.Direction.Opposite(),
		Quantity:        m.Quantity,
		Mass:            m.Mass,
		Value:           m.Value,
		BatchNumber:     m.BatchNumber,
		SerialNumber:    m.SerialNumber,
		TransactionType: m.TransactionType,
		HeaderID:        m.HeaderID,
		DetailID:        m.DetailID,
		OccurredAt:      occurredAt,
		ActingIdentity:  actingIdentity,
		CompensatesLine: &orig,
		Reason:          &reason,
	}
}

// StockTurnover is the opening/receipt/expense/closing view of a window.
type StockTurnover struct {
	ProductID      string         `json:"productId"`
	BatchNumber    *string        `json:"batchNumber,omitempty"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}
