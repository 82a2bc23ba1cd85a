// Package pricing computes discounted prices from a list price and a discount policy.
package pricing

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// RuleKind selects how a Rule's value is applied.
type RuleKind string

const (
	RulePercent RuleKind = "percent" // Value is a fraction of the list price (0.10 = 10% off)
	RuleAmount  RuleKind = "amount"  // Value is subtracted from the list price
)

var hundred = decimal.NewFromInt(100)

// Rule is a single discount.
type Rule struct {
	Kind  RuleKind
	Value decimal.Decimal
}

// Percent returns a percentage-off rule; pct is in percent (10 = 10% off).
func Percent(pct float64) Rule {
	return Rule{Kind: RulePercent, Value: decimal.NewFromFloat(pct).Div(hundred)}
}

// ParseRule parses "40%" as 40% off and a bare number such as "5.00" or
// "$5" as a fixed amount off.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}, eris.New("pricing: empty discount rule")
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return Rule{}, eris.Wrapf(err, "pricing: parse percent rule %q", s)
		}
		return Rule{Kind: RulePercent, Value: v.Div(hundred)}, nil
	}
	v, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return Rule{}, eris.Wrapf(err, "pricing: parse amount rule %q", s)
	}
	return Rule{Kind: RuleAmount, Value: v}, nil
}

// String renders the rule the way ParseRule reads it.
func (r Rule) String() string {
	if r.Kind == RuleAmount {
		return r.Value.StringFixed(2)
	}
	return r.Value.Mul(hundred).String() + "%"
}

// Apply returns the discounted price for list under rule, rounded to cents.
// The result is always within [0, list]: discounts that overshoot clamp to
// zero and negative discounts clamp to the list price. list must be
// non-negative; callers validate before pricing.
func Apply(list decimal.Decimal, rule Rule) decimal.Decimal {
	var price decimal.Decimal
	switch rule.Kind {
	case RuleAmount:
		price = list.Sub(rule.Value)
	default:
		price = list.Mul(decimal.NewFromInt(1).Sub(rule.Value))
	}
	price = price.Round(2)

	if price.IsNegative() {
		return decimal.Zero
	}
	if price.GreaterThan(list) {
		return list
	}
	return price
}
