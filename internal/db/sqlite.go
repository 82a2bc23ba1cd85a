package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/propane-pricer/internal/model"
)

// SQLite writes rows to a local SQLite database, for dry runs against a
// file instead of the shared Postgres instance.
type SQLite struct {
	db      *sql.DB
	stmt    statement
	timeout time.Duration
	now     func() time.Time
}

// NewSQLite opens a SQLite database at dsn, configures WAL mode, and creates
// the target table if the file does not have it yet.
func NewSQLite(ctx context.Context, dsn string, opts Options) (*SQLite, error) {
	stmt, err := buildStatement(opts, question)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; concurrent upserts queue on the pool instead of
	// contending for the database lock.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, createTableSQL(opts)); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "sqlite: create table %s", opts.Table)
	}

	return &SQLite{db: db, stmt: stmt, timeout: opts.Timeout, now: time.Now}, nil
}

func createTableSQL(opts Options) string {
	cols := ""
	for _, b := range bindings(opts.Columns) {
		typ := "TEXT"
		if b.column == opts.Columns.SKU {
			typ = "TEXT PRIMARY KEY"
		}
		if cols != "" {
			cols += ",\n\t"
		}
		cols += fmt.Sprintf("%s %s", quoteAndJoin([]string{b.column}), typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", sanitizeTable(opts.Table), cols)
}

// Upsert writes row. Errors are *UpsertError.
func (s *SQLite) Upsert(ctx context.Context, row model.Row) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.stmt.sql, s.stmt.args(row, s.now().UTC())...)
	if err != nil {
		return NewUpsertError(eris.Wrapf(err, "sqlite: write sku %s", row.SKU))
	}
	if s.stmt.mode == ModeUpdate {
		n, err := res.RowsAffected()
		if err != nil {
			return NewUpsertError(eris.Wrap(err, "sqlite: rows affected"))
		}
		if n == 0 {
			return &UpsertError{
				Reason: model.UpsertReasonNotFound,
				Err:    eris.Errorf("sqlite: sku %s not found", row.SKU),
			}
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
