// Package app assembles a storage backend and the domain services on top of
// it. The server and the tests share this wiring.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"traceledger/internal/config"
	"traceledger/internal/core/sequence"
	"traceledger/internal/core/tx"
	"traceledger/internal/domain"
	"traceledger/internal/domain/registers/ledger"
	"traceledger/internal/domain/serials"
	"traceledger/internal/infrastructure/storage/memory"
	"traceledger/internal/infrastructure/storage/migrations"
	"traceledger/internal/infrastructure/storage/postgres"
	"traceledger/internal/infrastructure/storage/postgres/ledger_repo"
	"traceledger/internal/infrastructure/storage/postgres/sequence_repo"
	"traceledger/internal/infrastructure/storage/postgres/serial_repo"
	"traceledger/internal/infrastructure/storage/sqlite"
	"traceledger/pkg/logger"
)

// LedgerStore is both sides of the ledger store.
type LedgerStore interface {
	ledger.Repository
	ledger.Reader
}

// Backend is one storage implementation of every store the domain needs.
type Backend struct {
	Name      string
	Sequence  sequence.Store
	Serials   serials.Repository
	Ledger    LedgerStore
	TxManager tx.ReadOnlyManager
	Events    domain.EventPublisher
	Audit     domain.AuditLogger

	// Postgres is set for the postgres backend; the outbox relay needs it.
	Postgres *postgres.TxManager

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases backend resources.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend opens the backend selected by cfg.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Postgres)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// OpenPostgres connects the pool, optionally migrates, and builds the repos.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*Backend, error) {
	if cfg.MigrateOnStart {
		if err := MigratePostgres(ctx, cfg.URL); err != nil {
			return nil, err
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.URL)
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	txm := postgres.NewTxManager(pool)
	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Name:      config.BackendPostgres,
		Sequence:  sequence_repo.NewStore(txm),
		Serials:   serial_repo.NewRepo(txm),
		Ledger:    ledger_repo.NewRepo(txm),
		TxManager: txm,
		Events:    postgres.NewOutboxPublisher(txm),
		Audit:     audit,
		Postgres:  txm,
		ping:      pool.Ping,
		close:     pool.Close,
	}, nil
}

// MigratePostgres applies all pending migrations to the database at url.
func MigratePostgres(ctx context.Context, url string) error {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	m, err := migrations.New(db, migrations.Postgres)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up(ctx)
}

// OpenSQLite opens and migrates the database file at path.
func OpenSQLite(ctx context.Context, path string) (*Backend, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	txm := sqlite.NewTxManager(db)
	events := sqlite.NewEventStore(txm)

	return &Backend{
		Name:      config.BackendSQLite,
		Sequence:  sqlite.NewSequenceStore(txm),
		Serials:   sqlite.NewSerialStore(txm),
		Ledger:    sqlite.NewLedgerStore(txm),
		TxManager: txm,
		Events:    events,
		Audit:     events,
		ping:      db.PingContext,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Warn(context.Background(), "close sqlite", "error", err)
			}
		},
	}, nil
}

// NewMemoryBackend returns a process-local backend for development and tests.
func NewMemoryBackend() *Backend {
	events := memory.NewEventLog()
	return &Backend{
		Name:      config.BackendMemory,
		Sequence:  memory.NewSequenceStore(),
		Serials:   memory.NewSerialStore(),
		Ledger:    memory.NewLedgerStore(),
		TxManager: memory.NewTxManager(),
		Events:    events,
		Audit:     events,
	}
}
