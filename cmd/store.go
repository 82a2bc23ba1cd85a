package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propane-pricer/internal/db"
)

func initUpserter(ctx context.Context, dryRun bool) (db.Upserter, error) {
	if dryRun {
		return db.Discard{}, nil
	}

	opts := cfg.StoreOptions()
	switch cfg.Store.Driver {
	case "sqlite":
		return db.NewSQLite(ctx, cfg.Store.DatabaseURL, opts)
	case "postgres":
		return db.NewPostgres(ctx, cfg.Store.DatabaseURL, opts)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
