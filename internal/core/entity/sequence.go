package entity

import (
	"fmt"
	"time"
)

// SequencePurpose separates the counter families that share one store.
type SequencePurpose string

const (
	// PurposeBatch counts batches per (site, type, day).
	PurposeBatch SequencePurpose = "BATCH"
	// PurposeSerialUnit counts units inside one batch.
	PurposeSerialUnit SequencePurpose = "SERIAL_UNIT"
	// PurposeSerialDaily counts short serial codes per (site, day).
	PurposeSerialDaily SequencePurpose = "SERIAL_DAILY"
)

// DateLayout is the calendar-day layout used in scope keys.
const DateLayout = "2006-01-02"

// ScopeKey identifies one independent counter.
// Unused dimensions stay zero (a daily serial counter has no batch type).
type ScopeKey struct {
	Purpose       SequencePurpose
	SiteID        int
	BatchType     BatchType
	BatchSequence int
	Date          time.Time
}

// BatchScope returns the counter scope for batch numbers.
func BatchScope(site int, bt BatchType, day time.Time) ScopeKey {
	return ScopeKey{Purpose: PurposeBatch, SiteID: site, BatchType: bt, Date: Day(day)}
}

// SerialUnitScope returns the counter scope for unit numbers within a batch.
func SerialUnitScope(site int, bt BatchType, batchSeq int, day time.Time) ScopeKey {
	return ScopeKey{Purpose: PurposeSerialUnit, SiteID: site, BatchType: bt, BatchSequence: batchSeq, Date: Day(day)}
}

// SerialDailyScope returns the counter scope for short serial codes.
func SerialDailyScope(site int, day time.Time) ScopeKey {
	return ScopeKey{Purpose: PurposeSerialDaily, SiteID: site, Date: Day(day)}
}

// String renders the canonical storage key, e.g. "BATCH|001|10|2025-12-06".
func (k ScopeKey) String() string {
	switch k.Purpose {
	case PurposeBatch:
		return fmt.Sprintf("%s|%03d|%s|%s", k.Purpose, k.SiteID, k.BatchType.Code(), k.DateString())
	case PurposeSerialUnit:
		return fmt.Sprintf("%s|%03d|%s|%04d|%s", k.Purpose, k.SiteID, k.BatchType.Code(), k.BatchSequence, k.DateString())
	default:
		return fmt.Sprintf("%s|%03d|%s", k.Purpose, k.SiteID, k.DateString())
	}
}

// DateString returns the scope day as YYYY-MM-DD.
func (k ScopeKey) DateString() string {
	return k.Date.Format(DateLayout)
}

// Day returns the calendar date of t, read in t's own location, as
// midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SequenceCounter is the persisted state of one counter scope.
type SequenceCounter struct {
	ScopeKey        string          `db:"scope_key" json:"scopeKey"`
	Purpose         SequencePurpose `db:"purpose" json:"purpose"`
	SiteID          int             `db:"site_id" json:"siteId"`
	BatchType       string          `db:"batch_type" json:"batchType,omitempty"`
	BatchSequence   int             `db:"batch_sequence" json:"batchSequence,omitempty"`
	ScopeDate       time.Time       `db:"scope_date" json:"scopeDate"`
	CurrentValue    int64           `db:"current_value" json:"currentValue"`
	MaxValue        int64           `db:"max_value" json:"maxValue"`
	LastGeneratedBy string          `db:"last_generated_by" json:"lastGeneratedBy"`
	LastGeneratedAt time.Time       `db:"last_generated_at" json:"lastGeneratedAt"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Remaining returns how many values the scope can still issue.
func (c *SequenceCounter) Remaining() int64 {
	return c.MaxValue - c.CurrentValue
}
