package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/types"
)

// Row types mirror the tables. SQLite has no timestamp or numeric type, so
// times travel as unix microseconds and decimals as text.

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

type counterRow struct {
	ScopeKey        string `db:"scope_key"`
	Purpose         string `db:"purpose"`
	SiteID          int    `db:"site_id"`
	BatchType       string `db:"batch_type"`
	BatchSequence   int    `db:"batch_sequence"`
	ScopeDate       string `db:"scope_date"`
	CurrentValue    int64  `db:"current_value"`
	MaxValue        int64  `db:"max_value"`
	LastGeneratedBy string `db:"last_generated_by"`
	LastGeneratedAt int64  `db:"last_generated_at"`
	CreatedAt       int64  `db:"created_at"`
}

func (r counterRow) toEntity() (*entity.SequenceCounter, error) {
	day, err := time.Parse(entity.DateLayout, r.ScopeDate)
	if err != nil {
		return nil, fmt.Errorf("parse scope date %q: %w", r.ScopeDate, err)
	}
	return &entity.SequenceCounter{
		ScopeKey:        r.ScopeKey,
		Purpose:         entity.SequencePurpose(r.Purpose),
		SiteID:          r.SiteID,
		BatchType:       r.BatchType,
		BatchSequence:   r.BatchSequence,
		ScopeDate:       day,
		CurrentValue:    r.CurrentValue,
		MaxValue:        r.MaxValue,
		LastGeneratedBy: r.LastGeneratedBy,
		LastGeneratedAt: fromMicros(r.LastGeneratedAt),
		CreatedAt:       fromMicros(r.CreatedAt),
	}, nil
}

type serialRow struct {
	FullCode        string         `db:"full_code"`
	ShortCode       string         `db:"short_code"`
	BatchNumber     string         `db:"batch_number"`
	SiteID          int            `db:"site_id"`
	BatchType       string         `db:"batch_type"`
	ProductionDate  string         `db:"production_date"`
	BatchSequence   int            `db:"batch_sequence"`
	UnitSequence    int            `db:"unit_sequence"`
	DailySequence   int            `db:"daily_sequence"`
	StrainCode      string         `db:"strain_code"`
	Weight          string         `db:"weight"`
	PackQty         int            `db:"pack_qty"`
	ProductID       sql.NullString `db:"product_id"`
	Status          string         `db:"status"`
	CreatedBy       string         `db:"created_by"`
	CreatedAt       int64          `db:"created_at"`
	StatusChangedBy sql.NullString `db:"status_changed_by"`
	StatusChangedAt sql.NullInt64  `db:"status_changed_at"`
}

func (r serialRow) toEntity() (entity.SerialNumber, error) {
	day, err := time.Parse(entity.DateLayout, r.ProductionDate)
	if err != nil {
		return entity.SerialNumber{}, fmt.Errorf("parse production date %q: %w", r.ProductionDate, err)
	}
	weight, err := decimal.NewFromString(r.Weight)
	if err != nil {
		return entity.SerialNumber{}, fmt.Errorf("parse weight %q: %w", r.Weight, err)
	}
	s := entity.SerialNumber{
		FullCode:        r.FullCode,
		ShortCode:       r.ShortCode,
		BatchNumber:     r.BatchNumber,
		SiteID:          r.SiteID,
		BatchType:       entity.BatchType(r.BatchType),
		ProductionDate:  day,
		BatchSequence:   r.BatchSequence,
		UnitSequence:    r.UnitSequence,
		DailySequence:   r.DailySequence,
		StrainCode:      r.StrainCode,
		Weight:          weight,
		PackQty:         r.PackQty,
		ProductID:       stringPtr(r.ProductID),
		Status:          entity.SerialStatus(r.Status),
		CreatedBy:       r.CreatedBy,
		CreatedAt:       fromMicros(r.CreatedAt),
		StatusChangedBy: stringPtr(r.StatusChangedBy),
	}
	if r.StatusChangedAt.Valid {
		at := fromMicros(r.StatusChangedAt.Int64)
		s.StatusChangedAt = &at
	}
	return s, nil
}

type transitionRow struct {
	FullCode       string `db:"full_code"`
	FromStatus     string `db:"from_status"`
	ToStatus       string `db:"to_status"`
	Reason         string `db:"reason"`
	ActingIdentity string `db:"acting_identity"`
	TransitionedAt int64  `db:"transitioned_at"`
}

func (r transitionRow) toEntity() entity.StatusTransition {
	return entity.StatusTransition{
		FullCode:       r.FullCode,
		FromStatus:     entity.SerialStatus(r.FromStatus),
		ToStatus:       entity.SerialStatus(r.ToStatus),
		Reason:         r.Reason,
		ActingIdentity: r.ActingIdentity,
		TransitionedAt: fromMicros(r.TransitionedAt),
	}
}

type movementRow struct {
	Seq               int64          `db:"seq"`
	LineID            string         `db:"line_id"`
	ProductID         string         `db:"product_id"`
	Direction         string         `db:"direction"`
	Quantity          int64          `db:"quantity"`
	Mass              string         `db:"mass"`
	Value             string         `db:"value"`
	BatchNumber       sql.NullString `db:"batch_number"`
	SerialNumber      sql.NullString `db:"serial_number"`
	TransactionType   string         `db:"transaction_type"`
	HeaderID          string         `db:"header_id"`
	DetailID          string         `db:"detail_id"`
	OccurredAt        int64          `db:"occurred_at"`
	RecordedAt        int64          `db:"recorded_at"`
	ActingIdentity    string         `db:"acting_identity"`
	CompensatesLineID sql.NullString `db:"compensates_line_id"`
	Reason            sql.NullString `db:"reason"`
	IdempotencyKey    sql.NullString `db:"idempotency_key"`
}

func (r movementRow) toEntity() (entity.MovementEvent, error) {
	lineID, err := id.Parse(r.LineID)
	if err != nil {
		return entity.MovementEvent{}, err
	}
	mass, err := decimal.NewFromString(r.Mass)
	if err != nil {
		return entity.MovementEvent{}, fmt.Errorf("parse mass %q: %w", r.Mass, err)
	}
	value, err := decimal.NewFromString(r.Value)
	if err != nil {
		return entity.MovementEvent{}, fmt.Errorf("parse value %q: %w", r.Value, err)
	}
	m := entity.MovementEvent{
		LineID:          lineID,
		Sequence:        r.Seq,
		ProductID:       r.ProductID,
		Direction:       entity.Direction(r.Direction),
		Quantity:        types.NewQuantityFromInt64Scaled(r.Quantity),
		Mass:            mass,
		Value:           value,
		BatchNumber:     stringPtr(r.BatchNumber),
		SerialNumber:    stringPtr(r.SerialNumber),
		TransactionType: entity.TransactionType(r.TransactionType),
		HeaderID:        r.HeaderID,
		DetailID:        r.DetailID,
		OccurredAt:      fromMicros(r.OccurredAt),
		RecordedAt:      fromMicros(r.RecordedAt),
		ActingIdentity:  r.ActingIdentity,
		Reason:          stringPtr(r.Reason),
		IdempotencyKey:  stringPtr(r.IdempotencyKey),
	}
	if r.CompensatesLineID.Valid {
		orig, err := id.Parse(r.CompensatesLineID.String)
		if err != nil {
			return entity.MovementEvent{}, err
		}
		m.CompensatesLine = &orig
	}
	return m, nil
}

func movementArgs(m entity.MovementEvent) []any {
	var compensates sql.NullString
	if m.CompensatesLine != nil {
		compensates = sql.NullString{String: m.CompensatesLine.String(), Valid: true}
	}
	return []any{
		m.LineID.String(), m.ProductID, string(m.Direction), m.Quantity.Int64Scaled(),
		m.Mass.String(), m.Value.String(),
		nullString(m.BatchNumber), nullString(m.SerialNumber), string(m.TransactionType),
		m.HeaderID, m.DetailID, micros(m.OccurredAt), micros(m.RecordedAt), m.ActingIdentity,
		compensates, nullString(m.Reason), nullString(m.IdempotencyKey),
	}
}
