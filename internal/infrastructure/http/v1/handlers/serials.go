package handlers

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/core/entity"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// SerialHandler serves the serial registry.
type SerialHandler struct {
	*BaseHandler
	registry *serials.Registry
}

// NewSerialHandler creates a serial handler.
func NewSerialHandler(base *BaseHandler, registry *serials.Registry) *SerialHandler {
	return &SerialHandler{BaseHandler: base, registry: registry}
}

// Get handles GET /serials/:code. The code may be short or full.
func (h *SerialHandler) Get(c *gin.Context) {
	serial, err := h.registry.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, serial)
}

// History handles GET /serials/:code/transitions.
func (h *SerialHandler) History(c *gin.Context) {
	history, err := h.registry.History(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(history))
}

// Transition handles POST /serials/:code/transitions.
func (h *SerialHandler) Transition(c *gin.Context) {
	actor, ok := h.ActingIdentity(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	serial, err := h.registry.TransitionStatus(c.Request.Context(), c.Param("code"),
		entity.SerialStatus(req.Status), req.Reason, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, serial)
}
