package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/discount"
	"github.com/noah-isme/backend-tours/internal/events"
	"github.com/noah-isme/backend-tours/internal/obs"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

// Locker serialises racing deliveries of the same transaction.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Reconciler creates bookings from payment confirmations.
type Reconciler struct {
	Store   Store
	Codec   cartmeta.Codec
	Engine  pricing.Engine
	Locker  Locker
	LockTTL time.Duration
	Bus     *events.Bus
	Logger  zerolog.Logger
}

// Reconcile is idempotent per transaction id: a second call for the same
// transaction returns OutcomeDuplicate and changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, c Confirmation) (Result, error) {
	ctx, span := otel.Tracer("booking.Reconciler").Start(ctx, "Reconciler.Reconcile")
	defer span.End()
	c.TransactionID = strings.TrimSpace(c.TransactionID)
	span.SetAttributes(attribute.String("payment.transaction_id", c.TransactionID))
	if c.TransactionID == "" {
		return Result{}, ErrMissingTransaction
	}

	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = r.reconcile(ctx, c)
		return err
	}
	var err error
	if r.Locker != nil {
		err = r.Locker.WithLock(ctx, c.TransactionID, r.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.IncCounter(obs.BookingReconcileTotal, "error")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("booking.outcome", string(res.Outcome)))
	obs.IncCounter(obs.BookingReconcileTotal, string(res.Outcome))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, c Confirmation) (Result, error) {
	log := r.Logger.With().Str("transaction_id", c.TransactionID).Logger()
	txID := db.Text(c.TransactionID)

	existing, err := r.Store.GetBookingByTransactionID(ctx, txID)
	if err == nil {
		return r.duplicate(log, existing, c), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Result{}, fmt.Errorf("load booking: %w", err)
	}

	items, err := r.Codec.Decode(ctx, c.Metadata)
	var reason string
	switch {
	case err == nil:
	case errors.Is(err, cartmeta.ErrNoCart):
		return Result{}, ErrMissingCart
	case cartmeta.Unrecoverable(err):
		// The payment cleared, so the booking is kept with the raw metadata
		// for staff to rebuild.
		log.Error().Err(err).Str("alert", "page").Msg("cart metadata unreadable; booking held for review")
		reason = reasonCartUnreadable
	default:
		return Result{}, fmt.Errorf("decode cart: %w", err)
	}

	var agreed pricing.Breakdown
	if reason == "" {
		agreed = r.agreedBreakdown(log, items, c.Metadata)
		reason = mismatch(agreed, c, c.Metadata)
	} else {
		agreed, _ = cartmeta.ReadBreakdown(c.Metadata)
	}
	status := dbgen.BookingStatusConfirmed
	if reason != "" {
		log.Warn().Str("reason", reason).Int64("charged_minor", c.AmountMinor).
			Int64("agreed_minor", agreed.AmountMinor()).Msg("booking needs review")
		status = dbgen.BookingStatusNeedsReview
	}

	code := discount.NormalizeCode(c.Metadata[cartmeta.KeyDiscountCode])
	var (
		created dbgen.Booking
		event   dbgen.DomainEvent
	)
	err = r.Store.InTx(ctx, func(q Queries) error {
		if err := discount.Redeem(ctx, q, code); err != nil {
			if !errors.Is(err, discount.ErrUsageLimitReached) {
				return err
			}
			log.Warn().Str("code", code).Msg("discount code exhausted before confirmation")
			status = dbgen.BookingStatusNeedsReview
			if reason == "" {
				reason = reasonDiscountExhausted
			}
		}
		params, err := bookingParams(c, items, agreed, status, code)
		if err != nil {
			return err
		}
		created, err = q.InsertBooking(ctx, params)
		if err != nil {
			return err
		}
		if r.Bus != nil {
			event, err = r.Bus.Record(ctx, q, topicFor(status), created.ID, eventPayload(created, reason, c.Metadata))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if IsUniqueViolation(err) {
		existing, lerr := r.Store.GetBookingByTransactionID(ctx, txID)
		if lerr != nil {
			return Result{}, fmt.Errorf("load booking after conflict: %w", lerr)
		}
		return r.duplicate(log, existing, c), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("create booking: %w", err)
	}

	if r.Bus != nil && event.ID.Valid {
		_ = r.Bus.Publish(ctx, event)
	}
	outcome := OutcomeCreated
	if status == dbgen.BookingStatusNeedsReview {
		outcome = OutcomeNeedsReview
	}
	log.Info().Str("outcome", string(outcome)).Int("items", len(items)).Msg("booking reconciled")
	return Result{Outcome: outcome, Booking: created}, nil
}

func (r *Reconciler) duplicate(log zerolog.Logger, existing dbgen.Booking, c Confirmation) Result {
	if c.AmountMinor != 0 && existing.AmountMinor != c.AmountMinor {
		log.Warn().Int64("charged_minor", c.AmountMinor).Int64("booked_minor", existing.AmountMinor).
			Msg("duplicate confirmation amount differs from booking")
	}
	log.Debug().Msg("booking already exists")
	return Result{Outcome: OutcomeDuplicate, Booking: existing}
}

// agreedBreakdown returns the breakdown recorded at checkout. The cart is
// re-priced only to surface divergence; it never replaces agreed figures
// unless metadata predates them.
func (r *Reconciler) agreedBreakdown(log zerolog.Logger, items []cart.LineItem, md map[string]string) pricing.Breakdown {
	agreed, ok := cartmeta.ReadBreakdown(md)
	var discountAmount decimal.Decimal
	if ok {
		discountAmount = agreed.Discount
	}
	repriced, _ := r.Engine.Quote(items, func(decimal.Decimal) decimal.Decimal { return discountAmount })
	if !ok {
		log.Warn().Msg("metadata carries no breakdown; using re-priced cart")
		return repriced
	}
	if !repriced.Subtotal.Equal(agreed.Subtotal) {
		log.Warn().Str("agreed_subtotal", agreed.Subtotal.StringFixed(2)).
			Str("repriced_subtotal", repriced.Subtotal.StringFixed(2)).Msg("re-priced cart diverges from agreed breakdown")
	}
	return agreed
}

const (
	reasonCartUnreadable    = "cart_unreadable"
	reasonDiscountExhausted = "discount_exhausted"
)

func mismatch(agreed pricing.Breakdown, c Confirmation, md map[string]string) string {
	if c.AmountMinor != agreed.AmountMinor() {
		return "amount_mismatch"
	}
	if want := md[cartmeta.KeyCurrency]; want != "" && c.Currency != "" && !strings.EqualFold(want, c.Currency) {
		return "currency_mismatch"
	}
	return ""
}

func topicFor(status dbgen.BookingStatus) string {
	if status == dbgen.BookingStatusNeedsReview {
		return events.TopicBookingReview
	}
	return events.TopicBookingConfirmed
}

func bookingParams(c Confirmation, items []cart.LineItem, b pricing.Breakdown, status dbgen.BookingStatus, code string) (dbgen.InsertBookingParams, error) {
	md := c.Metadata
	encodedItems, err := json.Marshal(cartmeta.FromItems(items))
	if err != nil {
		return dbgen.InsertBookingParams{}, fmt.Errorf("encode items: %w", err)
	}
	currency := strings.ToLower(c.Currency)
	if currency == "" {
		currency = strings.ToLower(md[cartmeta.KeyCurrency])
	}
	params := dbgen.InsertBookingParams{
		ID:                pgtype.UUID{Bytes: uuid.New(), Valid: true},
		TransactionID:     db.Text(c.TransactionID),
		Status:            status,
		CustomerFirstName: md[cartmeta.KeyFirstName],
		CustomerLastName:  md[cartmeta.KeyLastName],
		CustomerEmail:     md[cartmeta.KeyEmail],
		CustomerPhone:     db.Text(md[cartmeta.KeyPhone]),
		SpecialRequests:   db.Text(md[cartmeta.KeySpecialRequests]),
		PickupDetails:     db.Text(md[cartmeta.KeyPickupDetails]),
		Items:             encodedItems,
		Subtotal:          db.Numeric(b.Subtotal),
		ServiceFee:        db.Numeric(b.ServiceFee),
		Tax:               db.Numeric(b.Tax),
		Discount:          db.Numeric(b.Discount),
		Total:             db.Numeric(b.Total),
		Currency:          currency,
		AmountMinor:       c.AmountMinor,
	}
	if loc := md[cartmeta.KeyPickupLocation]; loc != "" && json.Valid([]byte(loc)) {
		params.PickupLocation = []byte(loc)
	}
	if code != "" && code != discount.NormalizeCode(discount.NoCode) {
		params.DiscountCode = db.Text(code)
	}
	return params, nil
}

// eventPayload describes b for subscribers. Review events carry the reason,
// and an unreadable cart also carries the metadata it came from.
func eventPayload(b dbgen.Booking, reason string, md map[string]string) map[string]any {
	payload := map[string]any{
		"bookingId":   uuid.UUID(b.ID.Bytes).String(),
		"status":      string(b.Status),
		"email":       b.CustomerEmail,
		"currency":    b.Currency,
		"amountMinor": b.AmountMinor,
		"total":       db.Decimal(b.Total).StringFixed(2),
	}
	if b.TransactionID.Valid {
		payload["transactionId"] = b.TransactionID.String
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if reason == reasonCartUnreadable {
		payload["metadata"] = md
	}
	return payload
}

func (r *Reconciler) lockTTL() time.Duration {
	if r.LockTTL > 0 {
		return r.LockTTL
	}
	return 30 * time.Second
}
