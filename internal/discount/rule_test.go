package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRuleValidate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	limit := int32(3)

	cases := []struct {
		name string
		rule Rule
		want error
	}{
		{"active", Rule{Active: true}, nil},
		{"inactive", Rule{Active: false}, ErrInactive},
		{"expired", Rule{Active: true, ExpiresAt: &past}, ErrExpired},
		{"expires exactly now", Rule{Active: true, ExpiresAt: &now}, nil},
		{"under limit", Rule{Active: true, UsageLimit: &limit, TimesUsed: 2}, nil},
		{"at limit", Rule{Active: true, UsageLimit: &limit, TimesUsed: 3}, ErrUsageLimitReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate(now)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRuleCompute(t *testing.T) {
	subtotal := decimal.RequireFromString("250")
	percent := Rule{Kind: KindPercentage, Value: decimal.NewFromInt(10)}
	require.True(t, percent.Compute(subtotal).Equal(decimal.RequireFromString("25")))

	odd := Rule{Kind: KindPercentage, Value: decimal.RequireFromString("12.5")}
	require.Equal(t, "4.17", odd.Compute(decimal.RequireFromString("33.33")).StringFixed(2))

	fixed := Rule{Kind: KindFixed, Value: decimal.RequireFromString("15.005")}
	require.Equal(t, "15.01", fixed.Compute(subtotal).StringFixed(2))

	require.True(t, Rule{Kind: "bogus", Value: decimal.NewFromInt(5)}.Compute(subtotal).IsZero())
	require.True(t, Rule{Kind: KindFixed, Value: decimal.NewFromInt(-5)}.Compute(subtotal).IsZero())
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
