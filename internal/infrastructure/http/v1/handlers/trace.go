package handlers

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/domain/trace"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// TraceHandler serves batch and serial traceability.
type TraceHandler struct {
	*BaseHandler
	query *trace.Query
}

// NewTraceHandler creates a trace handler.
func NewTraceHandler(base *BaseHandler, query *trace.Query) *TraceHandler {
	return &TraceHandler{BaseHandler: base, query: query}
}

// TraceBatch handles GET /trace/batches/:batchNumber.
func (h *TraceHandler) TraceBatch(c *gin.Context) {
	rows, err := h.query.TraceBatch(c.Request.Context(), c.Param("batchNumber"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows))
}

// BatchReport handles GET /trace/batches/:batchNumber/report.
func (h *TraceHandler) BatchReport(c *gin.Context) {
	report, err := h.query.BatchReport(c.Request.Context(), c.Param("batchNumber"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// TraceSerial handles GET /trace/serials/:code.
func (h *TraceHandler) TraceSerial(c *gin.Context) {
	st, err := h.query.TraceSerial(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}
