package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Postgres writes rows through a pgx connection pool.
type Postgres struct {
	pool    Pool
	stmt    statement
	timeout time.Duration
	now     func() time.Time
}

// NewPostgres connects to connString and verifies the connection with a ping.
func NewPostgres(ctx context.Context, connString string, opts Options) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if opts.MaxConns > 0 {
		pgxCfg.MaxConns = opts.MaxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	p, err := NewPostgresWithPool(pool, opts)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithPool builds a Postgres upserter over an existing pool.
func NewPostgresWithPool(pool Pool, opts Options) (*Postgres, error) {
	stmt, err := buildStatement(opts, dollar)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, stmt: stmt, timeout: opts.Timeout, now: time.Now}, nil
}

// SQL returns the statement executed for every row.
func (p *Postgres) SQL() string { return p.stmt.sql }

// Upsert writes row. Errors are *UpsertError.
func (p *Postgres) Upsert(ctx context.Context, row model.Row) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx, p.stmt.sql, p.stmt.args(row, p.now().UTC())...)
	if err != nil {
		return NewUpsertError(eris.Wrapf(err, "postgres: write sku %s", row.SKU))
	}
	if p.stmt.mode == ModeUpdate && tag.RowsAffected() == 0 {
		return &UpsertError{
			Reason: model.UpsertReasonNotFound,
			Err:    eris.Errorf("postgres: sku %s not found", row.SKU),
		}
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
