package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SerialStatus is the lifecycle state of a serialized unit.
type SerialStatus string

const (
	SerialCreated     SerialStatus = "CREATED"
	SerialAssigned    SerialStatus = "ASSIGNED"
	SerialInStock     SerialStatus = "IN_STOCK"
	SerialSold        SerialStatus = "SOLD"
	SerialTransferred SerialStatus = "TRANSFERRED"
	SerialDestroyed   SerialStatus = "DESTROYED"
	SerialReturned    SerialStatus = "RETURNED"
	SerialRecalled    SerialStatus = "RECALLED"
	SerialQuarantined SerialStatus = "QUARANTINED"
)

var serialTransitions = map[SerialStatus][]SerialStatus{
	SerialCreated:     {SerialAssigned, SerialDestroyed},
	SerialAssigned:    {SerialInStock, SerialQuarantined, SerialDestroyed},
	SerialInStock:     {SerialSold, SerialTransferred, SerialDestroyed, SerialReturned, SerialRecalled, SerialQuarantined},
	SerialTransferred: {SerialInStock, SerialReturned, SerialRecalled, SerialQuarantined},
	SerialReturned:    {SerialInStock, SerialQuarantined, SerialDestroyed, SerialRecalled},
	SerialQuarantined: {SerialInStock, SerialDestroyed, SerialRecalled},
	SerialRecalled:    {SerialQuarantined, SerialDestroyed, SerialReturned},
	SerialSold:        nil,
	SerialDestroyed:   nil,
}

// IsValid reports whether s is a known status.
func (s SerialStatus) IsValid() bool {
	_, ok := serialTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s SerialStatus) IsTerminal() bool {
	return s.IsValid() && len(serialTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle graph.
func (s SerialStatus) CanTransitionTo(next SerialStatus) bool {
	for _, to := range serialTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// SerialAttributes are the caller-supplied parts of a serial code.
type SerialAttributes struct {
	// StrainCode is up to 4 uppercase alphanumerics; empty means "0000".
	StrainCode string `json:"strainCode,omitempty"`
	// Weight in grams, at most 9999.99 with two decimals.
	Weight decimal.Decimal `json:"weight"`
	// PackQty is 1..999.
	PackQty int `json:"packQty"`
	// ProductID optionally links the unit to a product.
	ProductID string `json:"productId,omitempty"`
}

// SerialScope identifies the batch a serial belongs to.
type SerialScope struct {
	SiteID         int       `json:"siteId"`
	ProductionDate time.Time `json:"productionDate"`
	BatchType      BatchType `json:"batchType"`
	BatchSequence  int       `json:"batchSequence"`
}

// SerialNumber is a registered serialized unit.
type SerialNumber struct {
	FullCode        string          `db:"full_code" json:"fullCode"`
	ShortCode       string          `db:"short_code" json:"shortCode"`
	BatchNumber     string          `db:"batch_number" json:"batchNumber"`
	SiteID          int             `db:"site_id" json:"siteId"`
	BatchType       BatchType       `db:"batch_type" json:"batchType"`
	ProductionDate  time.Time       `db:"production_date" json:"productionDate"`
	BatchSequence   int             `db:"batch_sequence" json:"batchSequence"`
	UnitSequence    int             `db:"unit_sequence" json:"unitSequence"`
	DailySequence   int             `db:"daily_sequence" json:"dailySequence"`
	StrainCode      string          `db:"strain_code" json:"strainCode"`
	Weight          decimal.Decimal `db:"weight" json:"weight"`
	PackQty         int             `db:"pack_qty" json:"packQty"`
	ProductID       *string         `db:"product_id" json:"productId,omitempty"`
	Status          SerialStatus    `db:"status" json:"status"`
	CreatedBy       string          `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	StatusChangedBy *string         `db:"status_changed_by" json:"statusChangedBy,omitempty"`
	StatusChangedAt *time.Time      `db:"status_changed_at" json:"statusChangedAt,omitempty"`
}

// StatusTransition is one row of a serial's lifecycle history.
type StatusTransition struct {
	FullCode       string       `db:"full_code" json:"serial"`
	FromStatus     SerialStatus `db:"from_status" json:"from"`
	ToStatus       SerialStatus `db:"to_status" json:"to"`
	Reason         string       `db:"reason" json:"reason,omitempty"`
	ActingIdentity string       `db:"acting_identity" json:"actingIdentity"`
	TransitionedAt time.Time    `db:"transitioned_at" json:"transitionedAt"`
}
