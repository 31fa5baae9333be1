package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

type stubQueries struct {
	codes   map[string]dbgen.DiscountCode
	err     error
	lookups []string
}

func (s *stubQueries) GetDiscountCodeByCode(_ context.Context, code string) (dbgen.DiscountCode, error) {
	s.lookups = append(s.lookups, code)
	if s.err != nil {
		return dbgen.DiscountCode{}, s.err
	}
	m, ok := s.codes[code]
	if !ok {
		return dbgen.DiscountCode{}, pgx.ErrNoRows
	}
	return m, nil
}

type stubRedeemer struct {
	rows  int64
	err   error
	codes []string
}

func (s *stubRedeemer) RedeemDiscountCode(_ context.Context, code string) (int64, error) {
	s.codes = append(s.codes, code)
	return s.rows, s.err
}

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func seededQueries() *stubQueries {
	return &stubQueries{codes: map[string]dbgen.DiscountCode{
		"SAVE10": {
			Code:     "SAVE10",
			Kind:     dbgen.DiscountKindPercentage,
			Value:    db.Numeric(decimal.NewFromInt(10)),
			IsActive: true,
		},
		"EXPIRED": {
			Code:      "EXPIRED",
			Kind:      dbgen.DiscountKindPercentage,
			Value:     db.Numeric(decimal.NewFromInt(10)),
			IsActive:  true,
			ExpiresAt: pgtype.Timestamptz{Time: fixedNow.Add(-24 * time.Hour), Valid: true},
		},
		"USEDUP": {
			Code:       "USEDUP",
			Kind:       dbgen.DiscountKindFixed,
			Value:      db.Numeric(decimal.NewFromInt(5)),
			IsActive:   true,
			UsageLimit: pgtype.Int4{Int32: 1, Valid: true},
			TimesUsed:  1,
		},
	}}
}

func quoteWith(t *testing.T, svc *Service, code string) pricing.Breakdown {
	t.Helper()
	items := []cart.LineItem{{TourID: "t1", BasePrice: decimal.NewFromInt(100), AdultQty: 2, ChildQty: 1}}
	var adjust pricing.Adjustment
	if rule, ok := svc.Resolve(context.Background(), code); ok {
		adjust = rule.Compute
	}
	b, err := pricing.NewEngine(pricing.DefaultRates()).Quote(items, adjust)
	require.NoError(t, err)
	return b
}

func TestPercentageCodeAppliesToSubtotal(t *testing.T) {
	svc := &Service{Q: seededQueries(), Now: func() time.Time { return fixedNow }}
	b := quoteWith(t, svc, "SAVE10")
	require.Equal(t, "25.00", b.Discount.StringFixed(2))
	require.Equal(t, "245.00", b.Total.StringFixed(2))
}

func TestExpiredCodeIsIgnored(t *testing.T) {
	svc := &Service{Q: seededQueries(), Now: func() time.Time { return fixedNow }}
	b := quoteWith(t, svc, "EXPIRED")
	require.True(t, b.Discount.IsZero())
	require.Equal(t, "270.00", b.Total.StringFixed(2))

	_, err := svc.Lookup(context.Background(), "EXPIRED")
	require.ErrorIs(t, err, ErrExpired)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	q := seededQueries()
	svc := &Service{Q: q, Now: func() time.Time { return fixedNow }}
	rule, ok := svc.Resolve(context.Background(), "  save10")
	require.True(t, ok)
	require.Equal(t, "SAVE10", rule.Code)
	require.Equal(t, []string{"SAVE10"}, q.lookups)
}

func TestResolveDegradesSilently(t *testing.T) {
	svc := &Service{Q: seededQueries(), Now: func() time.Time { return fixedNow }}
	for _, code := range []string{"", "none", "NOPE", "USEDUP"} {
		_, ok := svc.Resolve(context.Background(), code)
		require.False(t, ok, code)
	}

	broken := &Service{Q: &stubQueries{err: errors.New("connection refused")}}
	_, ok := broken.Resolve(context.Background(), "SAVE10")
	require.False(t, ok)
	_, err := broken.Lookup(context.Background(), "SAVE10")
	require.ErrorContains(t, err, "connection refused")
}

func TestRedeem(t *testing.T) {
	r := &stubRedeemer{rows: 1}
	require.NoError(t, Redeem(context.Background(), r, "save10"))
	require.Equal(t, []string{"SAVE10"}, r.codes)

	require.NoError(t, Redeem(context.Background(), r, "none"))
	require.NoError(t, Redeem(context.Background(), r, ""))
	require.Len(t, r.codes, 1)

	exhausted := &stubRedeemer{rows: 0}
	require.ErrorIs(t, Redeem(context.Background(), exhausted, "USEDUP"), ErrUsageLimitReached)

	failing := &stubRedeemer{err: errors.New("boom")}
	require.ErrorContains(t, Redeem(context.Background(), failing, "SAVE10"), "boom")
}
