// Package discount validates promotional codes and computes their value.
package discount

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

// NoCode is recorded when an order carries no applicable discount.
const NoCode = "none"

var (
	// ErrNotFound is returned when no code matches.
	ErrNotFound = errors.New("discount code not found")
	// ErrInactive is returned when the code has been switched off.
	ErrInactive = errors.New("discount code not active")
	// ErrExpired is returned when the code is past its expiry.
	ErrExpired = errors.New("discount code expired")
	// ErrUsageLimitReached indicates the code has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
)

// Kind is how the rule value is interpreted.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Rule captures the runtime constraints of a discount code.
type Rule struct {
	Code       string
	Kind       Kind
	Value      decimal.Decimal
	Active     bool
	ExpiresAt  *time.Time
	UsageLimit *int32
	TimesUsed  int32
}

// Validate ensures the rule can be applied at the provided instant.
func (r Rule) Validate(now time.Time) error {
	if !r.Active {
		return ErrInactive
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return ErrExpired
	}
	if r.UsageLimit != nil && r.TimesUsed >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// Compute returns the discount for the subtotal. Unknown kinds and
// negative values yield zero.
func (r Rule) Compute(subtotal decimal.Decimal) decimal.Decimal {
	if r.Value.IsNegative() {
		return decimal.Zero
	}
	switch r.Kind {
	case KindPercentage:
		return pricing.Round2(subtotal.Mul(r.Value).Div(hundred))
	case KindFixed:
		return pricing.Round2(r.Value)
	default:
		return decimal.Zero
	}
}

// NormalizeCode canonicalises a shopper-entered code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RuleFromModel converts the generated sqlc model into a Rule used for evaluation.
func RuleFromModel(m dbgen.DiscountCode) Rule {
	rule := Rule{
		Code:      NormalizeCode(m.Code),
		Kind:      Kind(strings.ToLower(string(m.Kind))),
		Value:     db.Decimal(m.Value),
		Active:    m.IsActive,
		TimesUsed: m.TimesUsed,
	}
	if m.ExpiresAt.Valid {
		expires := m.ExpiresAt.Time
		rule.ExpiresAt = &expires
	}
	if m.UsageLimit.Valid {
		limit := m.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	return rule
}
