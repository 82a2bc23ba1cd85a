package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a single-row upsert statement.
type UpsertConfig struct {
	Table        string   // target table (e.g., "public.products")
	Columns      []string // all columns being inserted, in bind order
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type placeholder func(n int) string

func dollar(n int) string   { return fmt.Sprintf("$%d", n) }
func question(n int) string { return fmt.Sprintf("?%d", n) }

// UpsertSQL builds INSERT ... VALUES (...) ON CONFLICT (keys) DO UPDATE SET ...
// with one bind parameter per column, in cfg.Columns order.
func UpsertSQL(cfg UpsertConfig, ph placeholder) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	params := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		params[i] = ph(i + 1)
	}

	conflict := "DO NOTHING"
	if len(updateCols) > 0 {
		setClauses := make([]string, len(updateCols))
		for i, col := range updateCols {
			setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", pgx.Identifier{col}.Sanitize(), pgx.Identifier{col}.Sanitize())
		}
		conflict = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(params, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		conflict,
	), nil
}

// UpdateSQL builds UPDATE table SET c1 = $1, ... WHERE key = $n. Bind the
// set columns first, then the key.
func UpdateSQL(table string, setCols []string, key string, ph placeholder) (string, error) {
	if len(setCols) == 0 {
		return "", eris.New("db: update: no columns specified")
	}
	if key == "" {
		return "", eris.New("db: update: no key column specified")
	}

	setClauses := make([]string, len(setCols))
	for i, col := range setCols {
		setClauses[i] = fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), ph(i+1))
	}
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		sanitizeTable(table),
		strings.Join(setClauses, ", "),
		pgx.Identifier{key}.Sanitize(),
		ph(len(setCols)+1),
	), nil
}

// sanitizeTable handles schema-qualified table names like "public.products".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
