// Package trace answers recall questions: everything that happened to a
// batch or a serial unit. Results are complete; nothing is aggregated away.
package trace

import (
	"context"
	"fmt"
	"sort"

	"traceledger/internal/core/apperror"
	"traceledger/internal/core/entity"
	"traceledger/internal/core/tx"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/serials"
	"traceledger/pkg/labelcode"
)

// SerialTrace is the full story of one serial unit.
type SerialTrace struct {
	Serial    entity.SerialNumber       `json:"serial"`
	Movements []entity.MovementEvent    `json:"movements"`
	History   []entity.StatusTransition `json:"history"`
}

// AffectedTransaction is a downstream business transaction that touched a batch.
type AffectedTransaction struct {
	HeaderID        string                 `json:"headerId"`
	TransactionType entity.TransactionType `json:"transactionType"`
	Lines           int                    `json:"lines"`
	// Compensated is true when every line of the transaction for this batch
	// has been reversed.
	Compensated bool `json:"compensated"`
}

// BatchReport is the recall view of a batch.
type BatchReport struct {
	BatchNumber  string                 `json:"batchNumber"`
	Movements    []entity.MovementEvent `json:"movements"`
	Serials      []entity.SerialNumber  `json:"serials"`
	Transactions []AffectedTransaction  `json:"transactions"`
}

// SerialSource is the registry view the tracer needs.
type SerialSource interface {
	FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error)
	ListTransitions(ctx context.Context, fullCode string) ([]entity.StatusTransition, error)
	ListByBatch(ctx context.Context, batchNumber string) ([]entity.SerialNumber, error)
}

var _ SerialSource = (*serials.Registry)(nil)

// Query joins ledger rows with the serial registry.
type Query struct {
	reader  ledger.Reader
	serials SerialSource
	txm     tx.ReadOnlyManager
}

// NewQuery creates a traceability query service.
func NewQuery(reader ledger.Reader, src SerialSource, txm tx.ReadOnlyManager) *Query {
	return &Query{reader: reader, serials: src, txm: txm}
}

// TraceBatch returns every ledger row referencing the batch, compensations
// included, ordered by occurredAt then append sequence.
func (q *Query) TraceBatch(ctx context.Context, batchNumber string) ([]entity.MovementEvent, error) {
	if _, err := labelcode.ParseBatch(batchNumber); err != nil {
		return nil, apperror.NewValidation(err.Error()).WithDetail("batchNumber", batchNumber)
	}
	rows, err := q.reader.ListMovements(ctx, ledger.MovementFilter{BatchNumber: batchNumber})
	if err != nil {
		return nil, fmt.Errorf("trace batch %s: %w", batchNumber, err)
	}
	return rows, nil
}

// TraceSerial returns the serial record, its ledger rows and its status
// history. code may be short or full.
func (q *Query) TraceSerial(ctx context.Context, code string) (*SerialTrace, error) {
	out := &SerialTrace{}
	err := q.txm.ReadOnly(ctx, func(ctx context.Context) error {
		s, err := q.serials.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		rows, err := q.reader.ListMovements(ctx, ledger.MovementFilter{SerialNumber: s.FullCode})
		if err != nil {
			return fmt.Errorf("trace serial movements: %w", err)
		}
		history, err := q.serials.ListTransitions(ctx, s.FullCode)
		if err != nil {
			return fmt.Errorf("trace serial history: %w", err)
		}
		out.Serial, out.Movements, out.History = *s, rows, history
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchReport adds the serials minted for the batch and the downstream
// transactions that must be contacted in a recall.
func (q *Query) BatchReport(ctx context.Context, batchNumber string) (*BatchReport, error) {
	if _, err := labelcode.ParseBatch(batchNumber); err != nil {
		return nil, apperror.NewValidation(err.Error()).WithDetail("batchNumber", batchNumber)
	}
	out := &BatchReport{BatchNumber: batchNumber}
	err := q.txm.ReadOnly(ctx, func(ctx context.Context) error {
		rows, err := q.reader.ListMovements(ctx, ledger.MovementFilter{BatchNumber: batchNumber})
		if err != nil {
			return fmt.Errorf("trace batch movements: %w", err)
		}
		list, err := q.serials.ListByBatch(ctx, batchNumber)
		if err != nil {
			return fmt.Errorf("trace batch serials: %w", err)
		}
		out.Movements, out.Serials = rows, list
		out.Transactions = affected(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func affected(rows []entity.MovementEvent) []AffectedTransaction {
	type key struct {
		header string
		typ    entity.TransactionType
	}
	compensated := make(map[string]bool)
	for _, m := range rows {
		if m.CompensatesLine != nil {
			compensated[m.CompensatesLine.String()] = true
		}
	}

	idx := make(map[key]int)
	var out []AffectedTransaction
	open := make(map[key]int)
	for _, m := range rows {
		if m.IsCompensation() {
			continue
		}
		k := key{m.HeaderID, m.TransactionType}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, AffectedTransaction{HeaderID: m.HeaderID, TransactionType: m.TransactionType})
		}
		out[i].Lines++
		if !compensated[m.LineID.String()] {
			open[k]++
		}
	}
	for k, i := range idx {
		out[i].Compensated = open[k] == 0
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].TransactionType != out[b].TransactionType {
			return out[a].TransactionType < out[b].TransactionType
		}
		return out[a].HeaderID < out[b].HeaderID
	})
	return out
}
