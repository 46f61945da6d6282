package app

import (
	"traceledger/internal/domain"
	"traceledger/internal/domain/numbering"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/registers/stock"
	"traceledger/internal/domain/serials"
	"traceledger/internal/domain/trace"
)

// Options tunes the domain services.
type Options struct {
	Limits   numbering.Limits
	MaxBatch int
	Metrics  domain.Metrics
}

// Services is the full set of domain services over one backend.
type Services struct {
	Batches  *numbering.BatchAllocator
	Serials  *numbering.SerialAllocator
	Counters *numbering.Counters
	Registry *serials.Registry
	Ledger   *ledger.Service
	Stock    *stock.Calculator
	Trace    *trace.Query
}

// NewServices wires every domain service to b.
func NewServices(b *Backend, opts Options) *Services {
	deps := numbering.Deps{
		Store:     b.Sequence,
		TxManager: b.TxManager,
		Audit:     b.Audit,
		Events:    b.Events,
		Metrics:   opts.Metrics,
		Limits:    opts.Limits,
	}
	registry := serials.NewRegistry(b.Serials, b.TxManager, b.Events, opts.Metrics)

	return &Services{
		Batches:  numbering.NewBatchAllocator(deps),
		Serials:  numbering.NewSerialAllocator(deps, b.Serials),
		Counters: numbering.NewCounters(deps),
		Registry: registry,
		Ledger: ledger.NewService(ledger.Config{
			Repo:      b.Ledger,
			Serials:   registry,
			TxManager: b.TxManager,
			Events:    b.Events,
			Metrics:   opts.Metrics,
			MaxBatch:  opts.MaxBatch,
		}),
		Stock: stock.NewCalculator(b.Ledger, b.TxManager),
		Trace: trace.NewQuery(b.Ledger, registry, b.TxManager),
	}
}
