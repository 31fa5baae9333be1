package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/booking"
	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/events"
	"github.com/noah-isme/backend-tours/internal/lock"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

type codeState struct {
	limit int32
	used  int32
}

// memStore serialises transactions the way a unique index blocks a second
// insert until the first commits.
type memStore struct {
	mu          sync.Mutex
	bookings    map[string]dbgen.Booking
	codes       map[string]*codeState
	events      []dbgen.DomainEvent
	hideNextGet bool
}

func newMemStore() *memStore {
	return &memStore{bookings: map[string]dbgen.Booking{}, codes: map[string]*codeState{}}
}

func (s *memStore) GetBookingByTransactionID(_ context.Context, id pgtype.Text) (dbgen.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideNextGet {
		s.hideNextGet = false
		return dbgen.Booking{}, pgx.ErrNoRows
	}
	b, ok := s.bookings[id.String]
	if !ok {
		return dbgen.Booking{}, pgx.ErrNoRows
	}
	return b, nil
}

func (s *memStore) InTx(_ context.Context, fn func(q booking.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s, redeemed: map[string]int32{}}
	if err := fn(tx); err != nil {
		return err
	}
	for _, b := range tx.bookings {
		s.bookings[b.TransactionID.String] = b
	}
	for code, n := range tx.redeemed {
		s.codes[code].used += n
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memStore) bookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

type memTx struct {
	store    *memStore
	bookings []dbgen.Booking
	redeemed map[string]int32
	events   []dbgen.DomainEvent
}

func (t *memTx) GetBookingByTransactionID(_ context.Context, id pgtype.Text) (dbgen.Booking, error) {
	if b, ok := t.store.bookings[id.String]; ok {
		return b, nil
	}
	return dbgen.Booking{}, pgx.ErrNoRows
}

func (t *memTx) InsertBooking(_ context.Context, arg dbgen.InsertBookingParams) (dbgen.Booking, error) {
	if _, ok := t.store.bookings[arg.TransactionID.String]; ok {
		return dbgen.Booking{}, &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "bookings_transaction_id_key"}
	}
	b := dbgen.Booking{
		ID:                arg.ID,
		TransactionID:     arg.TransactionID,
		Status:            arg.Status,
		CustomerFirstName: arg.CustomerFirstName,
		CustomerLastName:  arg.CustomerLastName,
		CustomerEmail:     arg.CustomerEmail,
		CustomerPhone:     arg.CustomerPhone,
		SpecialRequests:   arg.SpecialRequests,
		PickupDetails:     arg.PickupDetails,
		PickupLocation:    arg.PickupLocation,
		Items:             arg.Items,
		Subtotal:          arg.Subtotal,
		ServiceFee:        arg.ServiceFee,
		Tax:               arg.Tax,
		Discount:          arg.Discount,
		Total:             arg.Total,
		Currency:          arg.Currency,
		AmountMinor:       arg.AmountMinor,
		DiscountCode:      arg.DiscountCode,
		CreatedAt:         pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	t.bookings = append(t.bookings, b)
	return b, nil
}

func (t *memTx) RedeemDiscountCode(_ context.Context, code string) (int64, error) {
	st, ok := t.store.codes[code]
	if !ok {
		return 0, nil
	}
	if st.limit > 0 && st.used+t.redeemed[code] >= st.limit {
		return 0, nil
	}
	t.redeemed[code]++
	return 1, nil
}

func (t *memTx) InsertDomainEvent(_ context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error) {
	ev := dbgen.DomainEvent{
		ID:          pgtype.UUID{Bytes: [16]byte{byte(len(t.store.events) + 1)}, Valid: true},
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
		OccurredAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	t.events = append(t.events, ev)
	return ev, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureNotifier) Notify(_ context.Context, ev dbgen.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, ev.Topic)
	return nil
}

func scenarioItems() []cart.LineItem {
	return []cart.LineItem{{
		TourID:    "kayak",
		Title:     "Sea Kayak Morning",
		BasePrice: decimal.NewFromInt(100),
		AdultQty:  2,
		ChildQty:  1,
	}}
}

// confirmation mirrors what checkout puts into intent metadata.
func confirmation(t *testing.T, txID, code string, adjust pricing.Adjustment) booking.Confirmation {
	t.Helper()
	items := scenarioItems()
	md, err := cartmeta.Codec{}.Encode(context.Background(), items)
	require.NoError(t, err)
	b, err := pricing.NewEngine(pricing.DefaultRates()).Quote(items, adjust)
	require.NoError(t, err)
	cartmeta.PutBreakdown(md, b)
	md[cartmeta.KeyFirstName] = "Ada"
	md[cartmeta.KeyLastName] = "Lovelace"
	md[cartmeta.KeyEmail] = "ada@example.com"
	md[cartmeta.KeyCurrency] = "usd"
	md[cartmeta.KeyPickupLocation] = `{"name":"Harbour Hotel"}`
	md[cartmeta.KeyDiscountCode] = code
	return booking.Confirmation{TransactionID: txID, AmountMinor: b.AmountMinor(), Currency: "usd", Metadata: md}
}

func newReconciler(store *memStore, notifier *captureNotifier) *booking.Reconciler {
	return &booking.Reconciler{
		Store:  store,
		Engine: pricing.NewEngine(pricing.DefaultRates()),
		Bus:    &events.Bus{Notifiers: []events.Notifier{notifier}},
	}
}

func TestReconcileCreatesBooking(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	r := newReconciler(store, notifier)

	c := confirmation(t, "pi_1", "none", nil)
	require.Equal(t, int64(27000), c.AmountMinor)

	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeCreated, res.Outcome)
	require.Equal(t, dbgen.BookingStatusConfirmed, res.Booking.Status)
	require.Equal(t, "ada@example.com", res.Booking.CustomerEmail)
	require.Equal(t, "usd", res.Booking.Currency)
	require.True(t, db.Decimal(res.Booking.Total).Equal(decimal.NewFromInt(270)))
	require.False(t, res.Booking.DiscountCode.Valid)
	require.JSONEq(t, `{"name":"Harbour Hotel"}`, string(res.Booking.PickupLocation))

	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicBookingConfirmed, store.events[0].Topic)
	require.Equal(t, []string{events.TopicBookingConfirmed}, notifier.topics)
}

func TestReconcileSecondDeliveryIsDuplicate(t *testing.T) {
	store := newMemStore()
	store.codes["SAVE10"] = &codeState{limit: 5}
	notifier := &captureNotifier{}
	r := newReconciler(store, notifier)
	tenPercent := func(s decimal.Decimal) decimal.Decimal { return s.Mul(decimal.NewFromFloat(0.1)) }

	c := confirmation(t, "pi_2", "save10", tenPercent)
	require.Equal(t, int64(24500), c.AmountMinor)

	first, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeCreated, first.Outcome)
	require.Equal(t, "SAVE10", first.Booking.DiscountCode.String)

	second, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeDuplicate, second.Outcome)
	require.Equal(t, first.Booking.ID, second.Booking.ID)

	require.Equal(t, 1, store.bookingCount())
	require.Equal(t, int32(1), store.codes["SAVE10"].used)
	require.Len(t, store.events, 1)
	require.Len(t, notifier.topics, 1)
}

func TestReconcileAmountMismatchNeedsReview(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	r := newReconciler(store, notifier)

	c := confirmation(t, "pi_3", "", nil)
	c.AmountMinor = 26000

	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeNeedsReview, res.Outcome)
	require.Equal(t, dbgen.BookingStatusNeedsReview, res.Booking.Status)
	require.Equal(t, int64(26000), res.Booking.AmountMinor)
	require.Equal(t, []string{events.TopicBookingReview}, notifier.topics)
}

func TestReconcileExhaustedCodeNeedsReview(t *testing.T) {
	store := newMemStore()
	store.codes["LAST"] = &codeState{limit: 1, used: 1}
	r := newReconciler(store, &captureNotifier{})

	c := confirmation(t, "pi_4", "last", func(decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(20) })
	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeNeedsReview, res.Outcome)
	require.Equal(t, int32(1), store.codes["LAST"].used)
}

func TestReconcileMissingCart(t *testing.T) {
	r := newReconciler(newMemStore(), &captureNotifier{})
	_, err := r.Reconcile(context.Background(), booking.Confirmation{TransactionID: "pi_5", AmountMinor: 100, Metadata: map[string]string{}})
	require.ErrorIs(t, err, booking.ErrMissingCart)

	_, err = r.Reconcile(context.Background(), booking.Confirmation{})
	require.ErrorIs(t, err, booking.ErrMissingTransaction)
}

func TestReconcileKeepsPaidBookingWithUnreadableCart(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	r := newReconciler(store, notifier)

	c := confirmation(t, "pi_corrupt", "", nil)
	c.Metadata[cartmeta.SlotKey(0)] = `[{"i":0,"t":"kayak","a":2`

	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeNeedsReview, res.Outcome)
	require.Equal(t, dbgen.BookingStatusNeedsReview, res.Booking.Status)
	require.Equal(t, c.AmountMinor, res.Booking.AmountMinor)
	require.True(t, db.Decimal(res.Booking.Total).Equal(decimal.NewFromInt(270)))
	require.JSONEq(t, `[]`, string(res.Booking.Items))
	require.Equal(t, []string{events.TopicBookingReview}, notifier.topics)

	var payload struct {
		Reason   string            `json:"reason"`
		Metadata map[string]string `json:"metadata"`
	}
	require.Len(t, store.events, 1)
	require.NoError(t, json.Unmarshal(store.events[0].Payload, &payload))
	require.Equal(t, "cart_unreadable", payload.Reason)
	require.Equal(t, c.Metadata[cartmeta.SlotKey(0)], payload.Metadata[cartmeta.SlotKey(0)])

	again, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeDuplicate, again.Outcome)
	require.Equal(t, 1, store.bookingCount())
}

func TestReconcileExpiredOverflowCart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	r := newReconciler(store, &captureNotifier{})
	r.Codec = cartmeta.Codec{Overflow: cartmeta.RedisOverflow{R: client}}

	c := confirmation(t, "pi_expired", "", nil)
	delete(c.Metadata, cartmeta.SlotKey(0))
	c.Metadata[cartmeta.KeyRef] = "gone"

	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeNeedsReview, res.Outcome)
	require.Equal(t, 1, store.bookingCount())

	// An unreachable store is retried rather than booked for review.
	mr.Close()
	c.TransactionID = "pi_unreachable"
	_, err = r.Reconcile(context.Background(), c)
	require.Error(t, err)
	require.False(t, errors.Is(err, booking.ErrMissingCart))
	require.Equal(t, 1, store.bookingCount())
}

func TestReconcileUniqueViolationCountsAsDuplicate(t *testing.T) {
	store := newMemStore()
	store.codes["SAVE10"] = &codeState{}
	r := newReconciler(store, &captureNotifier{})
	c := confirmation(t, "pi_6", "SAVE10", func(s decimal.Decimal) decimal.Decimal { return s.Mul(decimal.NewFromFloat(0.1)) })

	first, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)

	// A racing delivery that read before the winner committed.
	store.hideNextGet = true
	second, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeDuplicate, second.Outcome)
	require.Equal(t, first.Booking.ID, second.Booking.ID)
	require.Equal(t, int32(1), store.codes["SAVE10"].used)
	require.Len(t, store.events, 1)
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	for _, withLock := range []bool{false, true} {
		store := newMemStore()
		r := newReconciler(store, &captureNotifier{})
		if withLock {
			mr, err := miniredis.Run()
			require.NoError(t, err)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			r.Locker = lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}
			t.Cleanup(func() {
				_ = client.Close()
				mr.Close()
			})
		}
		c := confirmation(t, "pi_race", "", nil)

		const n = 8
		var wg sync.WaitGroup
		outcomes := make(chan booking.Outcome, n)
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := r.Reconcile(context.Background(), c)
				if err != nil {
					errs <- err
					return
				}
				outcomes <- res.Outcome
			}()
		}
		wg.Wait()
		close(outcomes)
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		counts := map[booking.Outcome]int{}
		for o := range outcomes {
			counts[o]++
		}
		require.Equal(t, 1, counts[booking.OutcomeCreated])
		require.Equal(t, n-1, counts[booking.OutcomeDuplicate])
		require.Equal(t, 1, store.bookingCount())
	}
}

func TestReconcileStoreErrorPropagates(t *testing.T) {
	r := &booking.Reconciler{Store: failingStore{}, Engine: pricing.NewEngine(pricing.DefaultRates())}
	_, err := r.Reconcile(context.Background(), confirmation(t, "pi_7", "", nil))
	require.Error(t, err)
	require.False(t, errors.Is(err, booking.ErrMissingCart))
}

type failingStore struct{}

func (failingStore) GetBookingByTransactionID(context.Context, pgtype.Text) (dbgen.Booking, error) {
	return dbgen.Booking{}, errors.New("connection refused")
}

func (failingStore) InTx(context.Context, func(booking.Queries) error) error {
	return errors.New("connection refused")
}
