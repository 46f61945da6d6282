package handlers

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/id"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler appends and compensates ledger rows.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// Append handles POST /ledger/movements. The rows are written as one set.
// A replay of a recorded idempotency key answers 200 with the original rows.
func (h *LedgerHandler) Append(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	var req dto.AppendMovementsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	key := req.IdempotencyKey
	if header := c.GetHeader(dto.HeaderIdempotencyKey); header != "" {
		if key != "" && key != header {
			h.Error(c, apperror.NewValidation("idempotency key in header and body differ"))
			return
		}
		key = header
	}

	result, err := h.service.AppendBatch(c.Request.Context(), ledger.AppendRequest{
		IdempotencyKey: key,
		Movements:      req.Movements,
	}, actor)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.AppendMovementsResponse{Movements: result.Events, Replayed: result.Replayed}
	if result.Replayed {
		h.OK(c, resp)
		return
	}
	h.Created(c, resp)
}

// Compensate handles POST /ledger/movements/:lineId/compensations.
func (h *LedgerHandler) Compensate(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	lineID, err := id.Parse(c.Param("lineId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid lineId format"))
		return
	}
	var req dto.CompensateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	event, err := h.service.Compensate(c.Request.Context(), lineID, req.Reason, actor, req.OccurredAt)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, event)
}
