// Package sqlite provides the embedded storage backend for single-site
// installs. One connection serialises every writer, which makes each
// counter upsert atomic without row locks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"traceledger/internal/infrastructure/storage/migrations"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DSN returns the driver connection string for the database file at path.
func DSN(path string) string {
	return "file:" + path + "?" + pragmas
}

// Open creates the database file if needed, applies migrations and returns
// a single-connection handle. path must be a file; ":memory:" is refused
// because migrations run on their own handle.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" || path == ":memory:" {
		return nil, fmt.Errorf("sqlite path must be a file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := DSN(path)

	if err := migrate(ctx, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite for migrations: %w", err)
	}
	m, err := migrations.New(db, migrations.SQLite)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up(ctx)
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure,
// and if column is non-empty, whether it names that table.column.
func isUniqueViolation(err error, column string) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return column == "" || strings.Contains(se.Error(), column)
	}
	return false
}
