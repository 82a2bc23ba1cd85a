package pricing

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// DefaultCodes is the discount code table used by the store's price files.
var DefaultCodes = map[string]string{
	"a": "40%",
	"b": "45%",
	"c": "50%",
	"d": "60%",
}

// DefaultRule applies to rows with no discount code or an unknown one.
const DefaultRule = "40%"

// Policy maps discount codes to rules, falling back to a default rule.
type Policy struct {
	Default Rule
	Codes   map[string]Rule
}

// NewPolicy builds a Policy from rule strings (see ParseRule). Code keys are
// matched case-insensitively.
func NewPolicy(def string, codes map[string]string) (Policy, error) {
	d, err := ParseRule(def)
	if err != nil {
		return Policy{}, eris.Wrap(err, "pricing: default rule")
	}

	p := Policy{Default: d, Codes: make(map[string]Rule, len(codes))}
	for code, text := range codes {
		r, err := ParseRule(text)
		if err != nil {
			return Policy{}, eris.Wrapf(err, "pricing: rule for code %q", code)
		}
		p.Codes[normalizeCode(code)] = r
	}
	return p, nil
}

// RuleFor returns the rule for a discount code.
func (p Policy) RuleFor(code string) Rule {
	if r, ok := p.Codes[normalizeCode(code)]; ok {
		return r
	}
	return p.Default
}

// Price returns the discounted price of list for the given discount code.
func (p Policy) Price(list decimal.Decimal, code string) decimal.Decimal {
	return Apply(list, p.RuleFor(code))
}

// Describe returns "default=40%, a=40%, ..." for logging.
func (p Policy) Describe() string {
	codes := make([]string, 0, len(p.Codes))
	for c := range p.Codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	parts := []string{"default=" + p.Default.String()}
	for _, c := range codes {
		parts = append(parts, c+"="+p.Codes[c].String())
	}
	return strings.Join(parts, ", ")
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
