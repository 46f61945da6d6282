// Package main applies the embedded schema migrations.
//
// Usage:
//
//	migrate [-config traceledger.yaml] up|down|steps N|version
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"traceledger/internal/config"
	"traceledger/internal/infrastructure/storage/migrations"
	"traceledger/internal/infrastructure/storage/sqlite"
	"traceledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACELEDGER_CONFIG"), "path to traceledger.yaml")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	m, err := open(cfg.Storage)
	if err != nil {
		log.Fatalw("failed to open migrator", "backend", cfg.Storage.Backend, "error", err)
	}
	defer func() { _ = m.Close() }()

	if err := run(ctx, m, args); err != nil {
		log.Fatalw("migration failed", "command", args[0], "error", err)
	}
}

func open(cfg config.StorageConfig) (*migrations.Migrator, error) {
	var (
		db      *sql.DB
		dialect migrations.Dialect
		err     error
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err = sql.Open("pgx", cfg.Postgres.URL)
		dialect = migrations.Postgres
	case config.BackendSQLite:
		db, err = sql.Open("sqlite", sqlite.DSN(cfg.SQLite.Path))
		dialect = migrations.SQLite
	default:
		return nil, fmt.Errorf("backend %q has no schema", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	m, err := migrations.New(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func run(ctx context.Context, m *migrations.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], err)
		}
		return m.Steps(ctx, n)
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info(ctx, "schema version", "version", v, "dirty", dirty)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-config file] up|down|steps N|version")
}
