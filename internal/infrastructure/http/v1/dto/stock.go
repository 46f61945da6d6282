package dto

import (
	"time"

	"traceledger/internal/core/types"
)

// SOHQuery holds the query of GET /stock/:productId/soh.
type SOHQuery struct {
	AsOf        string `form:"asOf"`
	BatchNumber string `form:"batchNumber" binding:"omitempty,len=17,numeric"`
}

// WindowQuery holds a [from, to] window for replay and turnover.
type WindowQuery struct {
	From        string `form:"from" binding:"required"`
	To          string `form:"to"`
	BatchNumber string `form:"batchNumber" binding:"omitempty,len=17,numeric"`
}

// SOHResponse is a derived stock-on-hand figure.
type SOHResponse struct {
	ProductID   string         `json:"productId"`
	BatchNumber string         `json:"batchNumber,omitempty"`
	AsOf        time.Time      `json:"asOf"`
	Quantity    types.Quantity `json:"quantity"`
}
