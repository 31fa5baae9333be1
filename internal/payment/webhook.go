package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-tours/internal/common"
	"github.com/noah-isme/backend-tours/internal/obs"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrInvalidSignature is returned when no v1 signature matches the payload.
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	// ErrStaleSignature is returned when the signed timestamp is outside the tolerance.
	ErrStaleSignature = errors.New("webhook timestamp outside tolerance")
)

// Verifier authenticates webhook payloads signed as
// t=<unix>,v1=hex(hmac_sha256(secret, "<t>.<body>")).
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// Verify checks header against body.
func (v Verifier) Verify(header string, body []byte) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return errors.New("webhook secret not configured")
	}
	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > tolerance || age < -tolerance {
		return ErrStaleSignature
	}
	expected := Sign(secret, timestamp, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Sign computes the v1 signature for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFor builds a complete header value, used by the sandbox and tests.
func SignatureFor(secret string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + Sign(secret, ts, body)
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string            `json:"id"`
			Amount         int64             `json:"amount"`
			AmountReceived int64             `json:"amount_received"`
			Currency       string            `json:"currency"`
			Status         string            `json:"status"`
			Metadata       map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a gateway event body.
func ParseEvent(body []byte) (Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	obj := p.Data.Object
	if p.ID == "" || obj.ID == "" {
		return Event{}, errors.New("webhook missing event or object id")
	}
	amount := obj.AmountReceived
	if amount == 0 {
		amount = obj.Amount
	}
	return Event{
		ID:            p.ID,
		Type:          p.Type,
		TransactionID: obj.ID,
		AmountMinor:   amount,
		Currency:      strings.ToLower(obj.Currency),
		Status:        obj.Status,
		Metadata:      obj.Metadata,
		Payload:       body,
	}, nil
}

// Dispatcher hands a confirmed payment to the booking side.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// WebhookHandler receives gateway notifications.
type WebhookHandler struct {
	Provider   string
	Verifier   Verifier
	Dispatcher Dispatcher
	Replay     *redis.Client
	ReplayTTL  time.Duration
	MaxBody    int64
	Logger     zerolog.Logger
}

// Handle verifies, de-duplicates and dispatches one notification. Duplicates
// and ignored event types are acknowledged with 200 so the gateway stops
// redelivering them.
func (h WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := obs.WithRequest(ctx, h.Logger)
	maxBody := h.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		common.Fail(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if err := h.Verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
		h.count("invalid_signature")
		logger.Warn().Err(err).Msg("payment_webhook_rejected")
		common.Fail(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ev, err := ParseEvent(body)
	if err != nil {
		h.count("invalid_payload")
		common.Fail(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	logger = logger.With().Str("event_id", ev.ID).Str("transaction_id", ev.TransactionID).Logger()
	if ev.Type != EventPaymentSucceeded {
		h.count("ignored")
		common.JSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	replayKey := ""
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		replayKey = fmt.Sprintf("wh:%s:%s", h.provider(), common.Sha256Hex(ev.ID))
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", ttl).Result()
		if err != nil {
			logger.Warn().Err(err).Msg("webhook_replay_guard_unavailable")
			replayKey = ""
		} else if !fresh {
			h.count("duplicate")
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	if h.Dispatcher == nil {
		h.release(ctx, replayKey)
		common.Fail(w, http.StatusInternalServerError, common.CodeInternal, "webhook unavailable", nil)
		return
	}
	if err := h.Dispatcher.Dispatch(ctx, ev); err != nil {
		h.release(ctx, replayKey)
		h.count("error")
		logger.Error().Err(err).Msg("payment_webhook_dispatch_failed")
		common.Fail(w, http.StatusInternalServerError, common.CodeInternal, "unable to process webhook", nil)
		return
	}
	h.count("accepted")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// release lets the gateway's redelivery through after a failed dispatch.
func (h WebhookHandler) release(ctx context.Context, key string) {
	if key == "" || h.Replay == nil {
		return
	}
	_ = h.Replay.Del(context.WithoutCancel(ctx), key).Err()
}

func (h WebhookHandler) provider() string {
	if h.Provider == "" {
		return "stripe"
	}
	return h.Provider
}

func (h WebhookHandler) count(result string) {
	obs.IncCounter(obs.PaymentWebhookTotal, h.provider(), result)
}
