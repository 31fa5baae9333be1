// Package pricing computes authoritative order totals from normalised cart items.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/cart"
)

// ErrInvalidAmount is returned when a cart prices to nothing chargeable.
var ErrInvalidAmount = errors.New("order amount must be positive")

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)

	// DefaultServiceFeeRate and DefaultTaxRate are the standard rates.
	DefaultServiceFeeRate = decimal.RequireFromString("0.03")
	DefaultTaxRate        = decimal.RequireFromString("0.05")
)

// Rates holds the percentage multipliers applied to the subtotal.
type Rates struct {
	ServiceFee decimal.Decimal
	Tax        decimal.Decimal
}

// DefaultRates returns the standard 3% service fee and 5% tax.
func DefaultRates() Rates {
	return Rates{ServiceFee: DefaultServiceFeeRate, Tax: DefaultTaxRate}
}

// Breakdown aggregates computed pricing components, each rounded to cents.
type Breakdown struct {
	Subtotal   decimal.Decimal
	ServiceFee decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
}

// AmountMinor converts the total into integer minor units.
func (b Breakdown) AmountMinor() int64 {
	return b.Total.Mul(hundred).Round(0).IntPart()
}

// Engine prices carts with a fixed set of rates.
type Engine struct {
	Rates Rates
}

// NewEngine builds an engine. Rates are taken as given, so zero means no fee
// or tax; negative rates are treated as zero.
func NewEngine(rates Rates) Engine {
	rates.ServiceFee = clampZero(rates.ServiceFee)
	rates.Tax = clampZero(rates.Tax)
	return Engine{Rates: rates}
}

// Adjustment computes the discount for a given subtotal.
type Adjustment func(subtotal decimal.Decimal) decimal.Decimal

// Subtotal sums line prices and rounds once.
func Subtotal(items []cart.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LinePrice(it))
	}
	return Round2(sum)
}

// Quote totals the cart. The breakdown is always returned; the error is
// ErrInvalidAmount when the cart is empty or the total is not positive.
func (e Engine) Quote(items []cart.LineItem, adjust Adjustment) (Breakdown, error) {
	subtotal := Subtotal(items)
	b := Breakdown{
		Subtotal:   subtotal,
		ServiceFee: Round2(subtotal.Mul(e.Rates.ServiceFee)),
		Tax:        Round2(subtotal.Mul(e.Rates.Tax)),
		Discount:   decimal.Zero,
	}
	if adjust != nil {
		b.Discount = Round2(clampZero(adjust(subtotal)))
	}
	b.Total = Round2(clampZero(b.Subtotal.Add(b.ServiceFee).Add(b.Tax).Sub(b.Discount)))
	if len(items) == 0 || !b.Total.IsPositive() {
		return b, ErrInvalidAmount
	}
	return b, nil
}

// LinePrice is base×adults + base/2×children + add-ons. Infants are free.
func LinePrice(it cart.LineItem) decimal.Decimal {
	base := clampZero(it.BasePrice)
	adults := decimal.NewFromInt(int64(max(it.AdultQty, 0)))
	children := decimal.NewFromInt(int64(max(it.ChildQty, 0)))
	return base.Mul(adults).
		Add(base.Mul(half).Mul(children)).
		Add(AddOnsTotal(it))
}

// AddOnsTotal sums add-on charges; per-guest add-ons scale with adults plus children.
func AddOnsTotal(it cart.LineItem) decimal.Decimal {
	guests := decimal.NewFromInt(int64(max(it.Guests(), 0)))
	total := decimal.Zero
	for _, a := range it.AddOns {
		if a.Quantity <= 0 {
			continue
		}
		line := clampZero(a.UnitPrice).Mul(decimal.NewFromInt(int64(a.Quantity)))
		if a.PerGuest {
			line = line.Mul(guests)
		}
		total = total.Add(line)
	}
	return total
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
