package handlers

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/domain/numbering"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// CounterHandler exposes counter maintenance for label migrations.
type CounterHandler struct {
	*BaseHandler
	counters *numbering.Counters
}

// NewCounterHandler creates a counter handler.
func NewCounterHandler(base *BaseHandler, counters *numbering.Counters) *CounterHandler {
	return &CounterHandler{BaseHandler: base, counters: counters}
}

// Advance handles PUT /admin/counters. The counter only moves forward.
func (h *CounterHandler) Advance(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	var req dto.AdvanceCounterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	scope, err := req.Scope()
	if err != nil {
		h.ValidationError(c, err)
		return
	}

	counter, err := h.counters.AdvanceTo(c.Request.Context(), scope, req.Value, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counter)
}

// Get handles GET /admin/counters. The scope is given as query parameters.
func (h *CounterHandler) Get(c *gin.Context) {
	var req dto.AdvanceCounterRequest
	if !h.BindQuery(c, &req) {
		return
	}
	scope, err := req.Scope()
	if err != nil {
		h.ValidationError(c, err)
		return
	}

	counter, err := h.counters.Get(c.Request.Context(), scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counter)
}
