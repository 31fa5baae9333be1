package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

// Querier captures the read required to resolve a code.
type Querier interface {
	GetDiscountCodeByCode(ctx context.Context, code string) (dbgen.DiscountCode, error)
}

// Redeemer captures the atomic usage increment.
type Redeemer interface {
	RedeemDiscountCode(ctx context.Context, code string) (int64, error)
}

// Service resolves codes at checkout time. It never mutates usage counters.
type Service struct {
	Q      Querier
	Now    func() time.Time
	Logger zerolog.Logger
}

// Lookup loads and validates a code, returning the reason it cannot apply.
func (s *Service) Lookup(ctx context.Context, code string) (Rule, error) {
	if s == nil || s.Q == nil {
		return Rule{}, errors.New("discount service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" || normalized == NormalizeCode(NoCode) {
		return Rule{}, ErrNotFound
	}
	model, err := s.Q.GetDiscountCodeByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("load discount code: %w", err)
	}
	rule := RuleFromModel(model)
	if err := rule.Validate(s.now()); err != nil {
		return rule, err
	}
	return rule, nil
}

// Resolve returns the applicable rule for code. Any failure, including a
// storage error, degrades to no discount so checkout is never blocked.
func (s *Service) Resolve(ctx context.Context, code string) (Rule, bool) {
	if NormalizeCode(code) == "" {
		return Rule{}, false
	}
	rule, err := s.Lookup(ctx, code)
	if err == nil {
		return rule, true
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInactive),
		errors.Is(err, ErrExpired), errors.Is(err, ErrUsageLimitReached):
		s.Logger.Debug().Str("code", NormalizeCode(code)).Str("reason", err.Error()).Msg("discount_code_ignored")
	default:
		s.Logger.Warn().Err(err).Str("code", NormalizeCode(code)).Msg("discount_lookup_failed")
	}
	return Rule{}, false
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Redeem atomically consumes one use of code. It is called once per confirmed
// booking, inside the booking transaction.
func Redeem(ctx context.Context, q Redeemer, code string) error {
	normalized := NormalizeCode(code)
	if normalized == "" || normalized == NormalizeCode(NoCode) {
		return nil
	}
	rows, err := q.RedeemDiscountCode(ctx, normalized)
	if err != nil {
		return fmt.Errorf("redeem discount code: %w", err)
	}
	if rows == 0 {
		return ErrUsageLimitReached
	}
	return nil
}
