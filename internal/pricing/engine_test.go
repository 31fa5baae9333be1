package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/cart"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func familyCart() []cart.LineItem {
	return []cart.LineItem{{TourID: "t1", BasePrice: dec("100"), AdultQty: 2, ChildQty: 1}}
}

func TestQuoteWithoutDiscount(t *testing.T) {
	b, err := NewEngine(DefaultRates()).Quote(familyCart(), nil)
	require.NoError(t, err)
	requireDecimal(t, "250.00", b.Subtotal)
	requireDecimal(t, "7.50", b.ServiceFee)
	requireDecimal(t, "12.50", b.Tax)
	requireDecimal(t, "0", b.Discount)
	requireDecimal(t, "270.00", b.Total)
	require.Equal(t, int64(27000), b.AmountMinor())
}

func TestQuotePercentageAdjustment(t *testing.T) {
	tenPercent := func(subtotal decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(dec("10")).Div(dec("100"))
	}
	b, err := NewEngine(DefaultRates()).Quote(familyCart(), tenPercent)
	require.NoError(t, err)
	requireDecimal(t, "25.00", b.Discount)
	requireDecimal(t, "245.00", b.Total)
}

func TestQuoteDiscountFloorsAtZero(t *testing.T) {
	huge := func(decimal.Decimal) decimal.Decimal { return dec("100000") }
	b, err := NewEngine(DefaultRates()).Quote(familyCart(), huge)
	require.ErrorIs(t, err, ErrInvalidAmount)
	requireDecimal(t, "0", b.Total)
	require.False(t, b.Total.IsNegative())
}

func TestQuoteEmptyCart(t *testing.T) {
	_, err := NewEngine(DefaultRates()).Quote(nil, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteZeroPricedCart(t *testing.T) {
	_, err := NewEngine(DefaultRates()).Quote([]cart.LineItem{{TourID: "free", AdultQty: 3}}, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteRoundsEachComponent(t *testing.T) {
	items := []cart.LineItem{{TourID: "t", BasePrice: dec("33.33"), AdultQty: 1, ChildQty: 1}}
	b, err := NewEngine(DefaultRates()).Quote(items, nil)
	require.NoError(t, err)
	// 33.33 + 16.665 = 49.995
	requireDecimal(t, "50.00", b.Subtotal)
	requireDecimal(t, "1.50", b.ServiceFee)
	requireDecimal(t, "2.50", b.Tax)
	requireDecimal(t, "54.00", b.Total)
}

func TestLinePriceIdentity(t *testing.T) {
	for _, base := range []string{"0", "1", "19.99", "100", "257.13"} {
		for adults := 1; adults <= 4; adults++ {
			for children := 0; children <= 3; children++ {
				item := cart.LineItem{BasePrice: dec(base), AdultQty: adults, ChildQty: children}
				want := dec(base).Mul(decimal.NewFromInt(int64(adults))).
					Add(dec(base).Div(dec("2")).Mul(decimal.NewFromInt(int64(children))))
				require.Truef(t, Round2(want).Equal(Round2(LinePrice(item))), "base=%s adults=%d children=%d", base, adults, children)
			}
		}
	}
}

func TestChildPaysHalf(t *testing.T) {
	adult := LinePrice(cart.LineItem{BasePrice: dec("80"), AdultQty: 1})
	withChild := LinePrice(cart.LineItem{BasePrice: dec("80"), AdultQty: 1, ChildQty: 1})
	requireDecimal(t, "40", withChild.Sub(adult))
}

func TestInfantsAreFree(t *testing.T) {
	without := LinePrice(cart.LineItem{BasePrice: dec("80"), AdultQty: 2})
	with := LinePrice(cart.LineItem{BasePrice: dec("80"), AdultQty: 2, InfantQty: 2})
	require.True(t, without.Equal(with))
}

func TestAddOnsTotal(t *testing.T) {
	item := cart.LineItem{
		BasePrice: dec("50"),
		AdultQty:  2,
		ChildQty:  1,
		InfantQty: 1,
		AddOns: []cart.AddOn{
			{ID: "lunch", Quantity: 1, UnitPrice: dec("12.50"), PerGuest: true},
			{ID: "photos", Quantity: 2, UnitPrice: dec("10")},
			{ID: "ignored", Quantity: 0, UnitPrice: dec("999")},
			{ID: "negative", Quantity: 1, UnitPrice: dec("-5")},
		},
	}
	// lunch 12.50×3 guests + photos 2×10
	requireDecimal(t, "57.50", AddOnsTotal(item))
	requireDecimal(t, "182.50", LinePrice(item))
}

func TestMonotonicity(t *testing.T) {
	base := cart.LineItem{
		BasePrice: dec("45.10"),
		AdultQty:  1,
		AddOns:    []cart.AddOn{{ID: "a", Quantity: 1, UnitPrice: dec("3.30"), PerGuest: true}},
	}
	grow := []func(cart.LineItem) cart.LineItem{
		func(it cart.LineItem) cart.LineItem { it.AdultQty++; return it },
		func(it cart.LineItem) cart.LineItem { it.ChildQty++; return it },
		func(it cart.LineItem) cart.LineItem { it.InfantQty++; return it },
		func(it cart.LineItem) cart.LineItem {
			it.AddOns = []cart.AddOn{{ID: "a", Quantity: it.AddOns[0].Quantity + 1, UnitPrice: dec("3.30"), PerGuest: true}}
			return it
		},
	}
	current := base
	for step := 0; step < 12; step++ {
		next := grow[step%len(grow)](current)
		require.True(t, Subtotal([]cart.LineItem{next}).GreaterThanOrEqual(Subtotal([]cart.LineItem{current})))
		current = next
	}
}

func TestNewEngineRates(t *testing.T) {
	e := NewEngine(Rates{})
	require.True(t, e.Rates.ServiceFee.IsZero())
	require.True(t, e.Rates.Tax.IsZero())
	b, err := e.Quote(familyCart(), nil)
	require.NoError(t, err)
	requireDecimal(t, "250.00", b.Total)

	e = NewEngine(Rates{ServiceFee: dec("-1"), Tax: dec("0.1")})
	require.True(t, e.Rates.ServiceFee.IsZero())
	require.True(t, e.Rates.Tax.Equal(dec("0.1")))
}
