// Package model defines the record types that flow through a pricing run.
package model

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// RawRecord is one input line before validation. Every field is the raw
// cell text; csv tags name the canonical header each field is decoded from.
type RawRecord struct {
	SKU          string `csv:"sku"`
	Description  string `csv:"description"`
	Category     string `csv:"category"`
	ListPrice    string `csv:"list_price"`
	DiscountCode string `csv:"discount_code"`

	Line int   `csv:"-"` // 1-based line in the source file
	Err  error `csv:"-"` // set when the line could not be read as a record
}

// Identifier returns the SKU when present, otherwise the source line.
func (r RawRecord) Identifier() string {
	if r.SKU != "" {
		return r.SKU
	}
	return "line " + strconv.Itoa(r.Line)
}

// Row is a validated product record with its computed discounted price.
// Rows are built by the parse package and never modified afterwards.
type Row struct {
	SKU             string          `json:"sku" yaml:"sku"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Category        string          `json:"category,omitempty" yaml:"category,omitempty"`
	DiscountCode    string          `json:"discount_code,omitempty" yaml:"discount_code,omitempty"`
	ListPrice       decimal.Decimal `json:"list_price" yaml:"list_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price" yaml:"discounted_price"`
	Line            int             `json:"line" yaml:"line"`
}
