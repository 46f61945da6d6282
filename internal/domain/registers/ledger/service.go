package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/id"
	"traceledger/internal/core/tx"
	"traceledger/internal/core/types"
	"traceledger/internal/domain"
	"traceledger/pkg/labelcode"
	"traceledger/pkg/logger"
)

var tracer = otel.Tracer("traceledger/ledger")

// DefaultMaxBatch bounds the rows accepted in one AppendBatch call.
const DefaultMaxBatch = 1000

// SerialResolver canonicalises scanned serial codes.
type SerialResolver interface {
	FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error)
}

// Movement is one row as submitted by a caller.
type Movement struct {
	ProductID       string                 `json:"productId" validate:"required,max=64"`
	Direction       entity.Direction       `json:"direction" validate:"required,oneof=IN OUT"`
	Quantity        types.Quantity         `json:"quantity" validate:"gt=0"`
	Mass            decimal.Decimal        `json:"mass"`
	Value           types.Money            `json:"value"`
	BatchNumber     string                 `json:"batchNumber,omitempty"`
	SerialNumber    string                 `json:"serialNumber,omitempty"`
	TransactionType entity.TransactionType `json:"transactionType" validate:"required"`
	HeaderID        string                 `json:"headerId" validate:"required,max=64"`
	DetailID        string                 `json:"detailId" validate:"required,max=64"`
	OccurredAt      time.Time              `json:"occurredAt"`
}

// AppendRequest is the set of rows produced by one business transaction.
type AppendRequest struct {
	IdempotencyKey string
	Movements      []Movement
}

// AppendResult carries the recorded rows. Replayed is true when the rows
// come from an earlier request with the same idempotency key.
type AppendResult struct {
	Events   []entity.MovementEvent
	Replayed bool
}

// Config wires the ledger service.
type Config struct {
	Repo      Repository
	Serials   SerialResolver
	TxManager tx.Manager
	Events    domain.EventPublisher
	Metrics   domain.Metrics
	MaxBatch  int
	Now       func() time.Time
}

// Service appends and compensates ledger rows.
type Service struct {
	repo     Repository
	serials  SerialResolver
	txm      tx.Manager
	events   domain.EventPublisher
	metrics  domain.Metrics
	validate *validator.Validate
	maxBatch int
	now      func() time.Time
}

// NewService creates a ledger service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:     cfg.Repo,
		serials:  cfg.Serials,
		txm:      cfg.TxManager,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		maxBatch: cfg.MaxBatch,
		now:      cfg.Now,
	}
	if s.events == nil {
		s.events = domain.Nop{}
	}
	if s.metrics == nil {
		s.metrics = domain.Nop{}
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Append records a single movement.
func (s *Service) Append(ctx context.Context, m Movement, actingIdentity string) (*entity.MovementEvent, error) {
	res, err := s.AppendBatch(ctx, AppendRequest{Movements: []Movement{m}}, actingIdentity)
	if err != nil {
		return nil, err
	}
	return &res.Events[0], nil
}

// AppendBatch records all rows of one business transaction atomically.
// Every row is validated before anything is written; one invalid row fails
// the whole request. A storage failure returns LEDGER_WRITE_FAILED and
// nothing is visible.
func (s *Service) AppendBatch(ctx context.Context, req AppendRequest, actingIdentity string) (*AppendResult, error) {
	ctx, span := tracer.Start(ctx, "Ledger.AppendBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(req.Movements)))

	if actingIdentity == "" {
		return nil, apperror.NewValidation("acting identity is required")
	}
	if len(req.Movements) == 0 {
		return nil, apperror.NewValidation("at least one movement is required")
	}
	if len(req.Movements) > s.maxBatch {
		return nil, apperror.NewValidation(fmt.Sprintf("at most %d movements per request", s.maxBatch))
	}

	result := &AppendResult{}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		events, err := s.prepare(ctx, req.Movements, actingIdentity)
		if err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			fp, err := fingerprint(req.Movements, actingIdentity)
			if err != nil {
				return apperror.NewInternal(err)
			}
			prior, err := s.repo.GetRequest(ctx, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("get idempotency record: %w", err)
			}
			if prior != nil {
				if prior.Fingerprint != fp {
					return apperror.NewIdempotencyMismatch(req.IdempotencyKey)
				}
				rows, err := s.repo.ListByIdempotencyKey(ctx, req.IdempotencyKey)
				if err != nil {
					return fmt.Errorf("list idempotent rows: %w", err)
				}
				if len(rows) == 0 {
					return apperror.NewIdempotencyConflict(req.IdempotencyKey)
				}
				result.Events, result.Replayed = rows, true
				return nil
			}
			if err := s.repo.SaveRequest(ctx, IdempotencyRecord{
				Key:            req.IdempotencyKey,
				Fingerprint:    fp,
				ActingIdentity: actingIdentity,
				LineCount:      len(events),
				CreatedAt:      s.now(),
			}); err != nil {
				return err
			}
			for i := range events {
				events[i].IdempotencyKey = &req.IdempotencyKey
			}
		}

		written, err := s.repo.Insert(ctx, events)
		if err != nil {
			return writeFailed(err)
		}
		result.Events = written
		return s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: "ledger",
			AggregateID:   written[0].HeaderID,
			EventType:     domain.EventMovementsAppended,
			Payload:       written,
		})
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeLedgerWriteFailed) {
			logger.Error(ctx, "ledger append failed", "rows", len(req.Movements), "error", err)
		}
		return nil, err
	}

	if !result.Replayed {
		counts := map[entity.TransactionType]int{}
		for _, e := range result.Events {
			counts[e.TransactionType]++
		}
		for t, n := range counts {
			s.metrics.MovementsAppended(string(t), n)
		}
	}
	logger.Info(ctx, "appended ledger movements",
		"rows", len(result.Events),
		"header_id", result.Events[0].HeaderID,
		"replayed", result.Replayed,
		"acting_identity", actingIdentity,
	)
	return result, nil
}

// Compensate appends the reversing row for lineID. The original row is left
// untouched. A row can be compensated at most once; a compensation can itself
// be compensated. occurredAt defaults to now.
func (s *Service) Compensate(
	ctx context.Context,
	lineID id.ID,
	reason string,
	actingIdentity string,
	occurredAt *time.Time,
) (*entity.MovementEvent, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Compensate")
	defer span.End()

	if actingIdentity == "" {
		return nil, apperror.NewValidation("acting identity is required")
	}
	if reason == "" {
		return nil, apperror.NewValidation("reason is required")
	}
	when := s.now()
	if occurredAt != nil && !occurredAt.IsZero() {
		when = occurredAt.UTC()
	}

	var comp *entity.MovementEvent
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		orig, err := s.repo.GetByLineID(ctx, lineID)
		if err != nil {
			return err
		}
		prior, err := s.repo.FindCompensation(ctx, lineID)
		if err != nil {
			return fmt.Errorf("find compensation: %w", err)
		}
		if prior != nil {
			return apperror.NewConflict("movement already compensated").
				WithDetail("lineId", lineID.String()).
				WithDetail("compensatedBy", prior.LineID.String())
		}

		row := orig.Compensation(reason, actingIdentity, when)
		row.LineID = id.New()
		row.RecordedAt = s.now()
		written, err := s.repo.Insert(ctx, []entity.MovementEvent{row})
		if err != nil {
			return writeFailed(err)
		}
		comp = &written[0]
		return s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: "ledger",
			AggregateID:   comp.HeaderID,
			EventType:     domain.EventMovementCompensate,
			Payload:       comp,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementsAppended(string(comp.TransactionType), 1)
	logger.Info(ctx, "compensated ledger movement",
		"line_id", lineID,
		"compensation_line_id", comp.LineID,
		"acting_identity", actingIdentity,
	)
	return comp, nil
}

// prepare validates every row and builds the events to insert. Serial codes
// are resolved to their full form and fill in a missing batch number.
func (s *Service) prepare(ctx context.Context, in []Movement, actingIdentity string) ([]entity.MovementEvent, error) {
	var problems []map[string]any
	fail := func(i int, field, msg string) {
		problems = append(problems, map[string]any{"row": i, "field": field, "error": msg})
	}

	now := s.now()
	out := make([]entity.MovementEvent, 0, len(in))
	for i, m := range in {
		if err := s.validate.Struct(m); err != nil {
			if verrs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range verrs {
					fail(i, fe.Field(), fe.Tag())
				}
			} else {
				fail(i, "", err.Error())
			}
			continue
		}
		if !m.TransactionType.IsValid() {
			fail(i, "transactionType", "unknown")
		}
		if m.OccurredAt.IsZero() {
			fail(i, "occurredAt", "required")
		}
		if m.Mass.IsNegative() {
			fail(i, "mass", "must not be negative")
		}
		if m.Value.IsNegative() {
			fail(i, "value", "must not be negative")
		}

		batch := m.BatchNumber
		if batch != "" {
			if _, err := labelcode.ParseBatch(batch); err != nil {
				fail(i, "batchNumber", err.Error())
			}
		}
		serial := m.SerialNumber
		if serial != "" && s.serials != nil {
			rec, err := s.serials.FindByCode(ctx, serial)
			switch {
			case apperror.IsNotFound(err):
				fail(i, "serialNumber", "unknown serial")
			case err != nil:
				return nil, fmt.Errorf("resolve serial %s: %w", serial, err)
			default:
				serial = rec.FullCode
				if batch == "" {
					batch = rec.BatchNumber
				} else if batch != rec.BatchNumber {
					fail(i, "batchNumber", "does not match serial batch")
				}
			}
		}

		out = append(out, entity.MovementEvent{
			LineID:          id.New(),
			ProductID:       m.ProductID,
			Direction:       m.Direction,
			Quantity:        m.Quantity,
			Mass:            m.Mass,
			Value:           m.Value,
			BatchNumber:     optional(batch),
			SerialNumber:    optional(serial),
			TransactionType: m.TransactionType,
			HeaderID:        m.HeaderID,
			DetailID:        m.DetailID,
			OccurredAt:      m.OccurredAt.UTC(),
			RecordedAt:      now,
			ActingIdentity:  actingIdentity,
		})
	}

	if len(problems) > 0 {
		return nil, apperror.NewValidation("invalid movements").WithDetail("errors", problems)
	}
	return out, nil
}

// fingerprint hashes the submitted rows so a reused idempotency key can be
// told apart from a genuine retry.
func fingerprint(rows []Movement, actingIdentity string) (string, error) {
	payload, err := json.Marshal(struct {
		Identity string     `json:"identity"`
		Rows     []Movement `json:"rows"`
	}{actingIdentity, rows})
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func writeFailed(err error) error {
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewLedgerWriteFailed(err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
