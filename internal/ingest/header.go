package ingest

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Canonical column names, matching the csv tags on model.RawRecord.
const (
	ColSKU          = "sku"
	ColDescription  = "description"
	ColCategory     = "category"
	ColListPrice    = "list_price"
	ColDiscountCode = "discount_code"
)

// Columns lists, per field, the header names accepted for it in priority order.
type Columns struct {
	SKU          []string `yaml:"sku" mapstructure:"sku"`
	Description  []string `yaml:"description" mapstructure:"description"`
	Category     []string `yaml:"category" mapstructure:"category"`
	ListPrice    []string `yaml:"list_price" mapstructure:"list_price"`
	DiscountCode []string `yaml:"discount_code" mapstructure:"discount_code"`
}

// DefaultColumns returns the header aliases used when none are configured.
func DefaultColumns() Columns {
	return Columns{
		SKU:          []string{"sku", "prodaltkey", "upc", "product_id"},
		Description:  []string{"description", "name"},
		Category:     []string{"category"},
		ListPrice:    []string{"list_price", "price", "price1", "retail"},
		DiscountCode: []string{"discount_code", "discount", "code"},
	}
}

// withDefaults fills empty alias lists from DefaultColumns.
func (c Columns) withDefaults() Columns {
	def := DefaultColumns()
	if len(c.SKU) == 0 {
		c.SKU = def.SKU
	}
	if len(c.Description) == 0 {
		c.Description = def.Description
	}
	if len(c.Category) == 0 {
		c.Category = def.Category
	}
	if len(c.ListPrice) == 0 {
		c.ListPrice = def.ListPrice
	}
	if len(c.DiscountCode) == 0 {
		c.DiscountCode = def.DiscountCode
	}
	return c
}

// headerMap is the result of matching a file header against Columns.
type headerMap struct {
	canonical []string // one name per input column, fed to the decoder
	ignored   []string // original names of columns that map to no field
	found     map[string]string
}

// normalizeHeader folds case and treats spaces and dashes as underscores,
// so " price1 ", "LIST-PRICE" and "list_price" all match their aliases.
// A Caser is stateful, so each call builds its own.
func normalizeHeader(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	s = cases.Fold().String(s)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func matchHeader(header []string, cols Columns) headerMap {
	cols = cols.withDefaults()

	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}

	hm := headerMap{
		canonical: make([]string, len(header)),
		found:     make(map[string]string),
	}
	taken := make([]bool, len(header))

	fields := []struct {
		name    string
		aliases []string
	}{
		{ColSKU, cols.SKU},
		{ColListPrice, cols.ListPrice},
		{ColDiscountCode, cols.DiscountCode},
		{ColDescription, cols.Description},
		{ColCategory, cols.Category},
	}
	for _, f := range fields {
	aliases:
		for _, alias := range f.aliases {
			a := normalizeHeader(alias)
			for i, n := range norm {
				if !taken[i] && n == a {
					taken[i] = true
					hm.canonical[i] = f.name
					hm.found[f.name] = header[i]
					break aliases
				}
			}
		}
	}

	for i, h := range header {
		if taken[i] {
			continue
		}
		// Unique placeholder so the decoder never sees duplicate names.
		hm.canonical[i] = "_ignored_" + strconv.Itoa(i)
		hm.ignored = append(hm.ignored, strings.TrimSpace(h))
	}
	return hm
}
