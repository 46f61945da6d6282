package entity

import (
	"fmt"
	"time"
)

// BatchType is the kind of operation a batch was created for.
// Each type has a fixed two-digit code embedded in batch and serial numbers.
type BatchType string

const (
	BatchTypeProduction      BatchType = "PRODUCTION"
	BatchTypeTransfer        BatchType = "TRANSFER"
	BatchTypeStockAdjustment BatchType = "STOCK_ADJUSTMENT"
	BatchTypeReceiving       BatchType = "RECEIVING"
	BatchTypeReturn          BatchType = "RETURN"
	BatchTypeDestruction     BatchType = "DESTRUCTION"
	BatchTypeQuarantine      BatchType = "QUARANTINE"
	BatchTypeHarvest         BatchType = "HARVEST"
)

var batchTypeCodes = map[BatchType]string{
	BatchTypeProduction:      "10",
	BatchTypeTransfer:        "20",
	BatchTypeStockAdjustment: "30",
	BatchTypeReceiving:       "40",
	BatchTypeReturn:          "50",
	BatchTypeDestruction:     "60",
	BatchTypeQuarantine:      "70",
	BatchTypeHarvest:         "80",
}

// BatchTypes lists every known batch type in code order.
func BatchTypes() []BatchType {
	return []BatchType{
		BatchTypeProduction, BatchTypeTransfer, BatchTypeStockAdjustment, BatchTypeReceiving,
		BatchTypeReturn, BatchTypeDestruction, BatchTypeQuarantine, BatchTypeHarvest,
	}
}

// Code returns the two-digit code, or "" for an unknown type.
func (t BatchType) Code() string {
	return batchTypeCodes[t]
}

// IsValid reports whether t is a known batch type.
func (t BatchType) IsValid() bool {
	_, ok := batchTypeCodes[t]
	return ok
}

// BatchTypeFromCode resolves a two-digit code back to its type.
func BatchTypeFromCode(code string) (BatchType, error) {
	for t, c := range batchTypeCodes {
		if c == code {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown batch type code %q", code)
}

// MaxSiteID is the largest site identifier that fits the 3-digit site field.
const MaxSiteID = 999

// BatchNumber is a parsed batch identifier.
type BatchNumber struct {
	Code      string    `json:"batchNumber"`
	SiteID    int       `json:"siteId"`
	BatchType BatchType `json:"batchType"`
	Date      time.Time `json:"date"`
	Sequence  int       `json:"sequence"`
}
