package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/resilience"
)

func newStripe(t *testing.T, handler http.HandlerFunc) (Stripe, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return Stripe{
		SecretKey: "sk_test_123",
		BaseURL:   srv.URL,
		HTTP: resilience.HTTPClient{
			Client:      srv.Client(),
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			Timeout:     time.Second,
		},
	}, calls
}

func TestStripeCreateIntentSendsFormAndHeaders(t *testing.T) {
	var got *http.Request
	gw, _ := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret_abc","status":"requires_payment_method","amount":27000,"currency":"usd"}`))
	})

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		AmountMinor:    27000,
		Currency:       "USD",
		Metadata:       map[string]string{"discount_code": "none", "cart_v": "2"},
		IdempotencyKey: "checkout-abc",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.ID)
	require.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	require.Equal(t, int64(27000), intent.AmountMinor)

	require.Equal(t, "/v1/payment_intents", got.URL.Path)
	require.Equal(t, "Bearer sk_test_123", got.Header.Get("Authorization"))
	require.Equal(t, "checkout-abc", got.Header.Get("Idempotency-Key"))
	require.Equal(t, "27000", got.PostForm.Get("amount"))
	require.Equal(t, "usd", got.PostForm.Get("currency"))
	require.Equal(t, "none", got.PostForm.Get("metadata[discount_code]"))
	require.Equal(t, "true", got.PostForm.Get("automatic_payment_methods[enabled]"))
}

func TestStripeClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
		calls  int32
	}{
		{"card declined", http.StatusPaymentRequired, `{"error":{"type":"card_error","message":"declined"}}`, InvalidRequest, 1},
		{"bad params", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"bad currency"}}`, InvalidRequest, 1},
		{"bad key", http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`, Misconfiguration, 1},
		{"auth error type", http.StatusBadRequest, `{"error":{"type":"authentication_error"}}`, Misconfiguration, 1},
		{"rate limited", http.StatusTooManyRequests, `{}`, ServiceUnavailable, 1},
		{"outage", http.StatusServiceUnavailable, `{}`, ServiceUnavailable, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw, calls := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 100, Currency: "usd"})
			require.Error(t, err)
			require.Equal(t, tc.kind, KindOf(err))
			require.Equal(t, tc.calls, calls.Load())
		})
	}
}

func TestStripeMissingKeyIsMisconfiguration(t *testing.T) {
	gw, calls := newStripe(t, func(w http.ResponseWriter, r *http.Request) {})
	gw.SecretKey = " "
	_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.Equal(t, Misconfiguration, KindOf(err))
	require.Equal(t, int32(0), calls.Load())
}

func TestStripeUnreachableIsUnavailable(t *testing.T) {
	gw := Stripe{
		SecretKey: "sk_test",
		BaseURL:   "http://127.0.0.1:1",
		HTTP:      resilience.HTTPClient{Client: &http.Client{Timeout: 200 * time.Millisecond}, MaxAttempts: 1},
	}
	_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.Equal(t, ServiceUnavailable, KindOf(err))
}

func TestSandboxIsDeterministicPerKey(t *testing.T) {
	sb := &Sandbox{}
	a, err := sb.CreateIntent(context.Background(), IntentRequest{AmountMinor: 500, Currency: "USD", IdempotencyKey: "k1"})
	require.NoError(t, err)
	b, err := sb.CreateIntent(context.Background(), IntentRequest{AmountMinor: 500, Currency: "USD", IdempotencyKey: "k1"})
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)
	require.Contains(t, a.ClientSecret, a.ID+"_secret_")

	req, ok := sb.Lookup(a.ID)
	require.True(t, ok)
	require.Equal(t, int64(500), req.AmountMinor)

	_, err = sb.CreateIntent(context.Background(), IntentRequest{})
	require.Equal(t, InvalidRequest, KindOf(err))
}
