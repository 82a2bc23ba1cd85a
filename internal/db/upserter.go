package db

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Upserter writes one row per call. Implementations are safe for
// concurrent use.
type Upserter interface {
	Upsert(ctx context.Context, row model.Row) error
	Close() error
}

// Mode selects the write statement.
type Mode string

const (
	ModeUpsert Mode = "upsert" // insert new SKUs, update existing ones
	ModeUpdate Mode = "update" // update existing SKUs only; unknown SKUs fail
)

// ColumnNames maps row fields to table columns. An empty name leaves that
// field out of the statement; SKU and DiscountedPrice are required.
type ColumnNames struct {
	SKU             string `yaml:"sku" mapstructure:"sku"`
	Description     string `yaml:"description" mapstructure:"description"`
	Category        string `yaml:"category" mapstructure:"category"`
	DiscountCode    string `yaml:"discount_code" mapstructure:"discount_code"`
	ListPrice       string `yaml:"list_price" mapstructure:"list_price"`
	DiscountedPrice string `yaml:"discounted_price" mapstructure:"discounted_price"`
	UpdatedAt       string `yaml:"updated_at" mapstructure:"updated_at"`
}

// DefaultColumnNames returns the column layout of the products table.
func DefaultColumnNames() ColumnNames {
	return ColumnNames{
		SKU:             "sku",
		Description:     "description",
		Category:        "category",
		DiscountCode:    "discount_code",
		ListPrice:       "list_price",
		DiscountedPrice: "discounted_price",
		UpdatedAt:       "updated_at",
	}
}

// Options configures an Upserter.
type Options struct {
	Table    string
	Mode     Mode
	Columns  ColumnNames
	Timeout  time.Duration // per call; 0 = none
	MaxConns int32         // Postgres pool size; 0 = driver default
}

// binding pairs a column with the row value written to it.
type binding struct {
	column string
	value  func(row model.Row, now time.Time) any
}

func bindings(c ColumnNames) []binding {
	all := []binding{
		{c.SKU, func(r model.Row, _ time.Time) any { return r.SKU }},
		{c.Description, func(r model.Row, _ time.Time) any { return r.Description }},
		{c.Category, func(r model.Row, _ time.Time) any { return r.Category }},
		{c.DiscountCode, func(r model.Row, _ time.Time) any { return r.DiscountCode }},
		{c.ListPrice, func(r model.Row, _ time.Time) any { return r.ListPrice }},
		{c.DiscountedPrice, func(r model.Row, _ time.Time) any { return r.DiscountedPrice }},
		{c.UpdatedAt, func(_ model.Row, now time.Time) any { return now }},
	}
	out := all[:0]
	for _, b := range all {
		if b.column != "" {
			out = append(out, b)
		}
	}
	return out
}

// statement is a prepared SQL string plus the ordered bindings for it.
type statement struct {
	sql   string
	binds []binding
	mode  Mode
}

func (s statement) args(row model.Row, now time.Time) []any {
	args := make([]any, len(s.binds))
	for i, b := range s.binds {
		args[i] = b.value(row, now)
	}
	return args
}

func buildStatement(opts Options, ph placeholder) (statement, error) {
	if opts.Table == "" {
		return statement{}, eris.New("db: no table specified")
	}
	if opts.Columns.SKU == "" || opts.Columns.DiscountedPrice == "" {
		return statement{}, eris.New("db: sku and discounted_price columns are required")
	}

	binds := bindings(opts.Columns)
	switch opts.Mode {
	case ModeUpsert, "":
		cols := make([]string, len(binds))
		for i, b := range binds {
			cols[i] = b.column
		}
		sql, err := UpsertSQL(UpsertConfig{
			Table:        opts.Table,
			Columns:      cols,
			ConflictKeys: []string{opts.Columns.SKU},
		}, ph)
		if err != nil {
			return statement{}, err
		}
		return statement{sql: sql, binds: binds, mode: ModeUpsert}, nil

	case ModeUpdate:
		// SKU goes last: it binds the WHERE clause.
		var ordered []binding
		var setCols []string
		for _, b := range binds[1:] {
			ordered = append(ordered, b)
			setCols = append(setCols, b.column)
		}
		ordered = append(ordered, binds[0])
		sql, err := UpdateSQL(opts.Table, setCols, opts.Columns.SKU, ph)
		if err != nil {
			return statement{}, err
		}
		return statement{sql: sql, binds: ordered, mode: ModeUpdate}, nil

	default:
		return statement{}, eris.Errorf("db: unknown write mode %q", opts.Mode)
	}
}

// withTimeout applies the per-call timeout, if any.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
