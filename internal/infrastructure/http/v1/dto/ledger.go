package dto

import (
	"time"

	"traceledger/internal/core/entity"
	"traceledger/internal/domain/registers/ledger"
)

// HeaderIdempotencyKey may carry the idempotency key instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

// AppendMovementsRequest is the body of POST /ledger/movements.
type AppendMovementsRequest struct {
	IdempotencyKey string            `json:"idempotencyKey" binding:"max=128"`
	Movements      []ledger.Movement `json:"movements" binding:"required,min=1"`
}

// AppendMovementsResponse carries the recorded rows.
type AppendMovementsResponse struct {
	Movements []entity.MovementEvent `json:"movements"`
	Replayed  bool                   `json:"replayed"`
}

// CompensateRequest is the body of POST /ledger/movements/:lineId/compensations.
type CompensateRequest struct {
	Reason     string     `json:"reason" binding:"required,max=500"`
	OccurredAt *time.Time `json:"occurredAt"`
}
