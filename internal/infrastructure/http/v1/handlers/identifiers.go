package handlers

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/core/entity"
	"traceledger/internal/domain/numbering"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// IdentifierHandler issues batch and serial numbers.
type IdentifierHandler struct {
	*BaseHandler
	batches *numbering.BatchAllocator
	serials *numbering.SerialAllocator
}

// NewIdentifierHandler creates an identifier handler.
func NewIdentifierHandler(base *BaseHandler, batches *numbering.BatchAllocator, serials *numbering.SerialAllocator) *IdentifierHandler {
	return &IdentifierHandler{BaseHandler: base, batches: batches, serials: serials}
}

// AllocateBatch handles POST /identifiers/batches.
func (h *IdentifierHandler) AllocateBatch(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	var req dto.AllocateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	day, err := dto.ParseDate("date", req.Date)
	if err != nil {
		h.ValidationError(c, err)
		return
	}

	batch, err := h.batches.Allocate(c.Request.Context(), req.SiteID, entity.BatchType(req.BatchType), day, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromBatchNumber(batch))
}

// AllocateSerials handles POST /identifiers/serials. Count defaults to 1.
func (h *IdentifierHandler) AllocateSerials(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	var req dto.AllocateSerialsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	scope, err := req.Scope()
	if err != nil {
		h.ValidationError(c, err)
		return
	}
	count := req.Count
	if count == 0 {
		count = 1
	}

	out, err := h.serials.AllocateBulk(c.Request.Context(), scope, count, req.Attributes(), actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.NewSerialsResponse(out))
}
