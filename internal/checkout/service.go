// Package checkout prices a submitted cart and opens a payment intent whose
// metadata carries everything needed to book it later.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/common"
	"github.com/noah-isme/backend-tours/internal/discount"
	"github.com/noah-isme/backend-tours/internal/obs"
	"github.com/noah-isme/backend-tours/internal/payment"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

// PriceBook replaces client prices with authoritative ones.
type PriceBook interface {
	Apply(ctx context.Context, raws []cart.RawItem) ([]cart.RawItem, error)
}

// DiscountResolver resolves a code to a rule, silently.
type DiscountResolver interface {
	Resolve(ctx context.Context, code string) (discount.Rule, bool)
}

// Quote is a priced cart.
type Quote struct {
	Items     []cart.LineItem
	Breakdown pricing.Breakdown
	Rule      discount.Rule
	Applied   bool
}

// Service runs checkout. PriceBook and Discounts are optional.
type Service struct {
	Gateway   payment.Gateway
	PriceBook PriceBook
	Discounts DiscountResolver
	Engine    pricing.Engine
	Codec     cartmeta.Codec
	Currency  string
	Validate  *validator.Validate
	Meter     *obs.CheckoutMeter
	Logger    zerolog.Logger
}

// Quote prices raws without touching the gateway.
func (s *Service) Quote(ctx context.Context, raws []cart.RawItem, code string) (Quote, error) {
	if len(raws) == 0 {
		return Quote{}, common.NewAppError(common.CodeInvalidAmount, "cart is empty", http.StatusBadRequest, pricing.ErrInvalidAmount)
	}
	if s.PriceBook != nil {
		priced, err := s.PriceBook.Apply(ctx, raws)
		if err != nil {
			return Quote{}, err
		}
		raws = priced
	}
	items, err := cart.NormalizeAll(raws)
	if err != nil {
		return Quote{}, common.Validation(err.Error(), err)
	}

	var q Quote
	q.Items = items
	var adjust pricing.Adjustment
	if s.Discounts != nil && strings.TrimSpace(code) != "" {
		if rule, ok := s.Discounts.Resolve(ctx, code); ok {
			q.Rule, q.Applied = rule, true
			adjust = rule.Compute
		}
	}
	q.Breakdown, err = s.Engine.Quote(items, adjust)
	if errors.Is(err, pricing.ErrInvalidAmount) {
		return q, common.NewAppError(common.CodeInvalidAmount, "order total must be greater than zero", http.StatusBadRequest, err)
	}
	if err != nil {
		return q, err
	}
	return q, nil
}

// Create prices the cart, encodes it into metadata and opens an intent.
// idempotencyKey is the caller's key; when blank one is derived from the
// request so a retried call cannot open a second intent.
func (s *Service) Create(ctx context.Context, req Request, idempotencyKey string) (Result, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Service.Create")
	defer span.End()

	res, err := s.create(ctx, req, idempotencyKey)
	provider := "none"
	if s.Gateway != nil {
		provider = s.Gateway.Name()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.IncCounter(obs.CheckoutIntentTotal, provider, resultLabel(err))
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("payment.transaction_id", res.TransactionID),
		attribute.Float64("checkout.total", res.Pricing.Total),
	)
	obs.IncCounter(obs.CheckoutIntentTotal, provider, "created")
	return res, nil
}

func (s *Service) create(ctx context.Context, req Request, idempotencyKey string) (Result, error) {
	if s.Gateway == nil {
		return Result{}, errors.New("checkout: payment gateway not configured")
	}
	if err := s.validateCustomer(req.Customer); err != nil {
		return Result{}, err
	}
	q, err := s.Quote(ctx, req.Cart, req.DiscountCode)
	if err != nil {
		return Result{}, err
	}

	cartKeys, err := s.Codec.Encode(ctx, q.Items)
	if errors.Is(err, cartmeta.ErrTooLarge) {
		return Result{}, common.NewAppError(common.CodeCartTooLarge,
			"too many items for a single booking, please split your order", http.StatusBadRequest, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode cart: %w", err)
	}
	currency := s.currency()
	md, err := buildMetadata(req, q, currency, cartKeys)
	if err != nil {
		return Result{}, err
	}

	amount := q.Breakdown.AmountMinor()
	intent, err := s.Gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountMinor:    amount,
		Currency:       currency,
		Metadata:       md,
		Description:    md[cartmeta.KeyTourSummary],
		ReceiptEmail:   req.Customer.Email,
		IdempotencyKey: intentKey(idempotencyKey, amount),
	})
	if err != nil {
		return Result{}, s.gatewayError(err)
	}

	obs.Observe(obs.CartMetadataSlots, float64(cartmeta.SlotCount(md)))
	if obs.CheckoutAmountMinor != nil {
		obs.CheckoutAmountMinor.WithLabelValues(currency).Observe(float64(amount))
	}
	s.Meter.Record(ctx, currency, amount)
	s.Logger.Info().
		Str("transaction_id", intent.ID).
		Int64("amount_minor", amount).
		Str("currency", currency).
		Int("items", len(q.Items)).
		Bool("discount_applied", q.Applied).
		Msg("checkout intent created")

	return Result{
		Success:                 true,
		TransactionClientSecret: intent.ClientSecret,
		TransactionID:           intent.ID,
		Pricing:                 pricingView(q.Breakdown, currency),
	}, nil
}

func (s *Service) validateCustomer(c Customer) error {
	v := s.Validate
	if v == nil {
		v = defaultValidator
	}
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return common.Validation("invalid customer details", err)
	}
	details := make(map[string]string, len(fieldErrs))
	var first string
	for _, fe := range fieldErrs {
		msg := fieldMessage(fe)
		details[fe.Field()] = msg
		if first == "" {
			first = msg
		}
	}
	appErr := common.Validation(first, err)
	appErr.Details = details
	return appErr
}

var defaultValidator = validator.New()

func fieldMessage(fe validator.FieldError) string {
	name := map[string]string{
		"FirstName": "first name",
		"LastName":  "last name",
		"Email":     "email",
	}[fe.Field()]
	if name == "" {
		name = strings.ToLower(fe.Field())
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	default:
		return name + " is invalid"
	}
}

// gatewayError maps a gateway failure to the caller-facing error. Credential
// problems are paged and never described to the shopper.
func (s *Service) gatewayError(err error) error {
	switch payment.KindOf(err) {
	case payment.InvalidRequest:
		return common.NewAppError(common.CodeGatewayInvalid,
			"payment could not be processed, please check your information", http.StatusPaymentRequired, err)
	case payment.ServiceUnavailable:
		return common.NewAppError(common.CodeGatewayDown,
			"payment service is unavailable, please try again shortly", http.StatusServiceUnavailable, err)
	case payment.Misconfiguration:
		obs.Inc(obs.GatewayMisconfigurationTotal)
		s.Logger.Error().Err(err).Str("alert", "page").Msg("payment gateway misconfigured")
		return common.NewAppError(common.CodeInternal, "internal error", http.StatusInternalServerError, err)
	default:
		s.Logger.Error().Err(err).Msg("payment gateway call failed")
		return common.NewAppError(common.CodeGatewayDown,
			"payment service is unavailable, please try again shortly", http.StatusServiceUnavailable, err)
	}
}

func (s *Service) currency() string {
	if c := strings.ToLower(strings.TrimSpace(s.Currency)); c != "" {
		return c
	}
	return "usd"
}

func resultLabel(err error) string {
	if kind := payment.KindOf(err); kind != 0 {
		return kind.String()
	}
	if app := common.AsAppError(err); app.Code != common.CodeInternal {
		return strings.ToLower(app.Code)
	}
	return "error"
}

// intentKey scopes the gateway idempotency key to the caller's key when one
// was sent. Without one every checkout gets a fresh key, so two purchases of
// the same cart never share an intent.
func intentKey(callerKey string, amount int64) string {
	if k := strings.TrimSpace(callerKey); k != "" {
		return "checkout-" + common.Sha256Hex(fmt.Sprintf("%s|%d", k, amount))
	}
	return "checkout-" + uuid.NewString()
}
