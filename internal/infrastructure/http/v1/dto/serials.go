package dto

import (
	"traceledger/internal/core/entity"
)

// TransitionRequest is the body of POST /serials/:code/transitions.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

// SerialsResponse lists the serials issued by one allocation.
type SerialsResponse struct {
	BatchNumber string                `json:"batchNumber"`
	Count       int                   `json:"count"`
	Serials     []entity.SerialNumber `json:"serials"`
}

// NewSerialsResponse wraps an allocation result.
func NewSerialsResponse(serials []entity.SerialNumber) SerialsResponse {
	resp := SerialsResponse{Count: len(serials), Serials: serials}
	if len(serials) > 0 {
		resp.BatchNumber = serials[0].BatchNumber
	}
	return resp
}
