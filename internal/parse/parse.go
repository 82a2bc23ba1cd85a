// Package parse turns raw input records into validated, priced rows.
package parse

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/propane-pricer/internal/model"
	"github.com/sells-group/propane-pricer/internal/pricing"
)

// Error is a row-level rejection carrying the failure kind.
type Error struct {
	Kind model.ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func parseErr(err error) *Error      { return &Error{Kind: model.ErrorKindParse, Err: err} }
func validationErr(err error) *Error { return &Error{Kind: model.ErrorKindValidation, Err: err} }

// priceNoise is stripped from price cells before parsing: currency symbols,
// thousands separators and padding. The sign is kept.
var priceNoise = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "")

// plainDecimal is the only shape accepted after cleanup; no exponents, so
// rounding to cents stays bounded by the cell's length.
var plainDecimal = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)

// Price parses a list price cell such as "49.99", " $1,299.00 " or "-5".
func Price(s string) (decimal.Decimal, error) {
	cleaned := priceNoise.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Decimal{}, eris.New("empty list price")
	}
	if !plainDecimal.MatchString(cleaned) {
		return decimal.Decimal{}, eris.Errorf("invalid list price %q", s)
	}
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, eris.Errorf("invalid list price %q", s)
	}
	return v, nil
}

// Row validates rec and prices it under policy. The returned error is
// always a *Error.
func Row(rec model.RawRecord, policy pricing.Policy) (model.Row, error) {
	if rec.Err != nil {
		return model.Row{}, parseErr(eris.Wrap(rec.Err, "malformed line"))
	}

	sku := strings.TrimSpace(rec.SKU)
	if sku == "" {
		return model.Row{}, parseErr(eris.New("missing sku"))
	}

	list, err := Price(rec.ListPrice)
	if err != nil {
		return model.Row{}, parseErr(err)
	}
	if list.IsNegative() {
		return model.Row{}, validationErr(eris.Errorf("negative list price %s", list))
	}

	code := strings.TrimSpace(rec.DiscountCode)
	return model.Row{
		SKU:             sku,
		Description:     strings.TrimSpace(rec.Description),
		Category:        strings.TrimSpace(rec.Category),
		DiscountCode:    code,
		ListPrice:       list,
		DiscountedPrice: policy.Price(list, code),
		Line:            rec.Line,
	}, nil
}

// Failure converts a parse error for rec into a failure record.
func Failure(rec model.RawRecord, err error) model.Failure {
	kind := model.ErrorKindParse
	var pe *Error
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	return model.Failure{
		ID:      rec.Identifier(),
		Line:    rec.Line,
		Kind:    kind,
		Message: err.Error(),
	}
}
