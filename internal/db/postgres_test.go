package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propane-pricer/internal/model"
)

// decimalArg matches a decimal.Decimal bind parameter by value.
type decimalArg string

func (d decimalArg) Match(v any) bool {
	dv, ok := v.(decimal.Decimal)
	return ok && dv.Equal(decimal.RequireFromString(string(d)))
}

func propaneRow() model.Row {
	return model.Row{
		SKU:             "SKU123",
		Description:     "PropaneTank20lb",
		ListPrice:       decimal.RequireFromString("49.99"),
		DiscountedPrice: decimal.RequireFromString("44.99"),
		Line:            2,
	}
}

func newMockPostgres(t *testing.T, opts Options) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	if opts.Table == "" {
		opts.Table = "products"
	}
	if opts.Columns == (ColumnNames{}) {
		opts.Columns = DefaultColumnNames()
	}
	p, err := NewPostgresWithPool(mock, opts)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, mock
}

func TestPostgres_Upsert(t *testing.T) {
	p, mock := newMockPostgres(t, Options{})

	mock.ExpectExec(p.SQL()).
		WithArgs("SKU123", "PropaneTank20lb", "", "", decimalArg("49.99"), decimalArg("44.99"),
			time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, p.Upsert(context.Background(), propaneRow()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertSQL(t *testing.T) {
	p, _ := newMockPostgres(t, Options{})
	assert.Equal(t,
		`INSERT INTO "products" ("sku", "description", "category", "discount_code", "list_price", "discounted_price", "updated_at") `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT ("sku") DO UPDATE SET `+
			`"description" = EXCLUDED."description", "category" = EXCLUDED."category", "discount_code" = EXCLUDED."discount_code", `+
			`"list_price" = EXCLUDED."list_price", "discounted_price" = EXCLUDED."discounted_price", "updated_at" = EXCLUDED."updated_at"`,
		p.SQL())
}

func TestPostgres_UpsertConstraintError(t *testing.T) {
	p, mock := newMockPostgres(t, Options{})

	mock.ExpectExec(p.SQL()).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check constraint violated"})

	err := p.Upsert(context.Background(), propaneRow())
	require.Error(t, err)

	var ue *UpsertError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, model.UpsertReasonConstraint, ue.Reason)
	assert.Contains(t, err.Error(), "write sku SKU123")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateMode(t *testing.T) {
	p, mock := newMockPostgres(t, Options{
		Mode: ModeUpdate,
		Columns: ColumnNames{
			SKU:             "prodaltkey",
			DiscountCode:    "discount_code",
			DiscountedPrice: "mp",
		},
	})
	assert.Equal(t, `UPDATE "products" SET "discount_code" = $1, "mp" = $2 WHERE "prodaltkey" = $3`, p.SQL())

	mock.ExpectExec(p.SQL()).
		WithArgs("", decimalArg("44.99"), "SKU123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, p.Upsert(context.Background(), propaneRow()))

	mock.ExpectExec(p.SQL()).
		WithArgs("", decimalArg("44.99"), "SKU123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := p.Upsert(context.Background(), propaneRow())
	require.Error(t, err)
	assert.Equal(t, model.UpsertReasonNotFound, ReasonOf(err))
	assert.Contains(t, err.Error(), "sku SKU123 not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ConnectionError(t *testing.T) {
	p, mock := newMockPostgres(t, Options{})

	mock.ExpectExec(p.SQL()).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("write tcp 10.0.0.1:5432: connection reset by peer"))

	err := p.Upsert(context.Background(), propaneRow())
	assert.Equal(t, model.UpsertReasonConnection, ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgres_BadConnString(t *testing.T) {
	_, err := NewPostgres(context.Background(), "postgres://%zz", Options{Table: "products", Columns: DefaultColumnNames()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
