package db

import (
	"context"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Discard accepts every row and writes nothing. It backs dry runs.
type Discard struct{}

// Upsert does nothing.
func (Discard) Upsert(context.Context, model.Row) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }
