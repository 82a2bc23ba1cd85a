package pricing

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApply_TenPercent(t *testing.T) {
	got := Apply(d("49.99"), Percent(10))
	assert.True(t, d("44.99").Equal(got), "got %s", got)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		list string
		rule string
		want string
	}{
		{"forty percent", "100.00", "40%", "60.00"},
		{"rounds half away from zero", "10.05", "50%", "5.03"},
		{"zero list price", "0", "40%", "0"},
		{"no discount", "12.34", "0%", "12.34"},
		{"full discount", "12.34", "100%", "0"},
		{"over one hundred percent clamps to zero", "12.34", "150%", "0"},
		{"amount off", "49.99", "5.00", "44.99"},
		{"amount off larger than price clamps to zero", "3.00", "$5", "0"},
		{"negative percent clamps to list", "20.00", "-10%", "20.00"},
		{"negative amount clamps to list", "20.00", "-1.50", "20.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := ParseRule(tt.rule)
			require.NoError(t, err)
			got := Apply(d(tt.list), rule)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestApply_AlwaysWithinListPrice(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	rules := []Rule{
		Percent(0), Percent(10), Percent(40), Percent(99.5), Percent(100), Percent(250), Percent(-30),
		{Kind: RuleAmount, Value: d("0.01")},
		{Kind: RuleAmount, Value: d("1000")},
		{Kind: RuleAmount, Value: d("-3")},
	}

	for i := 0; i < 2000; i++ {
		list := decimal.New(rng.Int64N(10_000_000), -int32(rng.IntN(4)))
		for _, r := range rules {
			got := Apply(list, r)
			assert.False(t, got.IsNegative(), "list=%s rule=%s got=%s", list, r, got)
			assert.True(t, got.LessThanOrEqual(list), "list=%s rule=%s got=%s", list, r, got)
		}
	}
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule(" 45% ")
	require.NoError(t, err)
	assert.Equal(t, RulePercent, r.Kind)
	assert.True(t, d("0.45").Equal(r.Value))
	assert.Equal(t, "45%", r.String())

	r, err = ParseRule("$2.5")
	require.NoError(t, err)
	assert.Equal(t, RuleAmount, r.Kind)
	assert.Equal(t, "2.50", r.String())
}

func TestParseRule_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc%", "ten", "%"} {
		_, err := ParseRule(s)
		assert.Error(t, err, "input %q", s)
	}
}
