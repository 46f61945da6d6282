package dto

import (
	"fmt"

	"github.com/shopspring/decimal"

	"traceledger/internal/core/entity"
)

// AllocateBatchRequest is the body of POST /identifiers/batches.
type AllocateBatchRequest struct {
	SiteID    int    `json:"siteId" binding:"required,min=1,max=999"`
	BatchType string `json:"batchType" binding:"required"`
	Date      string `json:"date" binding:"required"`
}

// BatchNumberResponse describes an issued batch number.
type BatchNumberResponse struct {
	BatchNumber string `json:"batchNumber"`
	SiteID      int    `json:"siteId"`
	BatchType   string `json:"batchType"`
	Date        string `json:"date"`
	Sequence    int    `json:"sequence"`
}

// FromBatchNumber converts a batch number to its response.
func FromBatchNumber(b *entity.BatchNumber) BatchNumberResponse {
	return BatchNumberResponse{
		BatchNumber: b.Code,
		SiteID:      b.SiteID,
		BatchType:   string(b.BatchType),
		Date:        b.Date.Format(entity.DateLayout),
		Sequence:    b.Sequence,
	}
}

// AllocateSerialsRequest is the body of POST /identifiers/serials.
type AllocateSerialsRequest struct {
	SiteID         int             `json:"siteId" binding:"required,min=1,max=999"`
	ProductionDate string          `json:"productionDate" binding:"required"`
	BatchType      string          `json:"batchType" binding:"required"`
	BatchSequence  int             `json:"batchSequence" binding:"required,min=1,max=9999"`
	Count          int             `json:"count" binding:"omitempty,min=1"`
	StrainCode     string          `json:"strainCode" binding:"omitempty,max=4,alphanum"`
	Weight         decimal.Decimal `json:"weight"`
	PackQty        int             `json:"packQty" binding:"required,min=1,max=999"`
	ProductID      string          `json:"productId" binding:"omitempty,max=64"`
}

// Scope returns the batch scope the serials belong to.
func (r AllocateSerialsRequest) Scope() (entity.SerialScope, error) {
	day, err := ParseDate("productionDate", r.ProductionDate)
	if err != nil {
		return entity.SerialScope{}, err
	}
	return entity.SerialScope{
		SiteID:         r.SiteID,
		ProductionDate: day,
		BatchType:      entity.BatchType(r.BatchType),
		BatchSequence:  r.BatchSequence,
	}, nil
}

// Attributes returns the per-unit attributes.
func (r AllocateSerialsRequest) Attributes() entity.SerialAttributes {
	return entity.SerialAttributes{
		StrainCode: r.StrainCode,
		Weight:     r.Weight,
		PackQty:    r.PackQty,
		ProductID:  r.ProductID,
	}
}

// AdvanceCounterRequest is the body of PUT /admin/counters and the query
// of GET /admin/counters.
type AdvanceCounterRequest struct {
	Purpose       string `json:"purpose" form:"purpose" binding:"required,oneof=BATCH SERIAL_UNIT SERIAL_DAILY"`
	SiteID        int    `json:"siteId" form:"siteId" binding:"required,min=1,max=999"`
	BatchType     string `json:"batchType" form:"batchType"`
	BatchSequence int    `json:"batchSequence" form:"batchSequence" binding:"omitempty,min=1,max=9999"`
	Date          string `json:"date" form:"date" binding:"required"`
	Value         int64  `json:"value" form:"value" binding:"min=0"`
}

// Scope returns the counter scope named by the request.
func (r AdvanceCounterRequest) Scope() (entity.ScopeKey, error) {
	day, err := ParseDate("date", r.Date)
	if err != nil {
		return entity.ScopeKey{}, err
	}
	bt := entity.BatchType(r.BatchType)
	switch entity.SequencePurpose(r.Purpose) {
	case entity.PurposeBatch:
		return entity.BatchScope(r.SiteID, bt, day), nil
	case entity.PurposeSerialUnit:
		return entity.SerialUnitScope(r.SiteID, bt, r.BatchSequence, day), nil
	case entity.PurposeSerialDaily:
		return entity.SerialDailyScope(r.SiteID, day), nil
	default:
		return entity.ScopeKey{}, fmt.Errorf("unknown purpose %q", r.Purpose)
	}
}
