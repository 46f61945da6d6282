package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"traceledger/internal/domain/registers/stock"
	"traceledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves derived stock-on-hand figures.
type StockHandler struct {
	*BaseHandler
	calc *stock.Calculator
	now  func() time.Time
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, calc *stock.Calculator) *StockHandler {
	return &StockHandler{BaseHandler: base, calc: calc, now: func() time.Time { return time.Now().UTC() }}
}

// GetSOH handles GET /stock/:productId/soh[?asOf=RFC3339][&batchNumber=...].
func (h *StockHandler) GetSOH(c *gin.Context) {
	var q dto.SOHQuery
	if !h.BindQuery(c, &q) {
		return
	}
	asOf, err := dto.ParseTimestamp("asOf", q.AsOf, h.now())
	if err != nil {
		h.ValidationError(c, err)
		return
	}

	productID := c.Param("productId")
	ctx := c.Request.Context()

	var resp dto.SOHResponse
	resp.ProductID = productID
	resp.AsOf = asOf
	switch {
	case q.BatchNumber != "":
		resp.BatchNumber = q.BatchNumber
		resp.Quantity, err = h.calc.BatchSOH(ctx, productID, q.BatchNumber, asOf)
	default:
		resp.Quantity, err = h.calc.SOHAsOf(ctx, productID, asOf)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, resp)
}

// GetReplay handles GET /stock/:productId/replay?from=...&to=...
func (h *StockHandler) GetReplay(c *gin.Context) {
	from, to, ok := h.window(c)
	if !ok {
		return
	}
	replay, err := h.calc.Replay(c.Request.Context(), c.Param("productId"), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, replay)
}

// GetTurnover handles GET /stock/:productId/turnover?from=...&to=...[&batchNumber=...]
func (h *StockHandler) GetTurnover(c *gin.Context) {
	from, to, ok := h.window(c)
	if !ok {
		return
	}
	turnover, err := h.calc.Turnover(c.Request.Context(), c.Param("productId"), c.Query("batchNumber"), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, turnover)
}

// window parses from and to; to defaults to now.
func (h *StockHandler) window(c *gin.Context) (time.Time, time.Time, bool) {
	var q dto.WindowQuery
	if !h.BindQuery(c, &q) {
		return time.Time{}, time.Time{}, false
	}
	from, err := dto.ParseTimestamp("from", q.From, time.Time{})
	if err != nil {
		h.ValidationError(c, err)
		return time.Time{}, time.Time{}, false
	}
	to, err := dto.ParseTimestamp("to", q.To, h.now())
	if err != nil {
		h.ValidationError(c, err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
