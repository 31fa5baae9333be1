package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-tours/internal/resilience"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// Stripe creates payment intents through the Stripe REST API.
type Stripe struct {
	SecretKey string
	BaseURL   string
	HTTP      resilience.HTTPClient
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (Stripe) Name() string { return "stripe" }

// CreateIntent posts a form-encoded payment intent. Retries reuse the same
// Idempotency-Key so the gateway never opens two intents for one checkout.
func (s Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	key := strings.TrimSpace(s.SecretKey)
	if key == "" {
		return Intent{}, &GatewayError{Kind: Misconfiguration, Message: "secret key not configured"}
	}
	if req.AmountMinor <= 0 {
		return Intent{}, &GatewayError{Kind: InvalidRequest, Message: "amount must be positive"}
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.ReceiptEmail != "" {
		form.Set("receipt_email", req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	endpoint := strings.TrimRight(s.baseURL(), "/") + "/v1/payment_intents"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Intent{}, &GatewayError{Kind: Misconfiguration, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := s.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Intent{}, classifyTransport(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, &GatewayError{Kind: ServiceUnavailable, Message: "read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return Intent{}, stripeError(resp.StatusCode, body)
	}
	var out stripeIntent
	if err := json.Unmarshal(body, &out); err != nil {
		return Intent{}, &GatewayError{Kind: ServiceUnavailable, Message: "decode response", Err: err}
	}
	if out.ID == "" || out.ClientSecret == "" {
		return Intent{}, &GatewayError{Kind: ServiceUnavailable, Message: "incomplete intent in response", Err: errors.New(string(body))}
	}
	return Intent{
		Provider:     s.Name(),
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		Status:       out.Status,
		AmountMinor:  out.Amount,
		Currency:     out.Currency,
	}, nil
}

func (s Stripe) baseURL() string {
	if strings.TrimSpace(s.BaseURL) == "" {
		return defaultStripeBaseURL
	}
	return s.BaseURL
}

func stripeError(status int, body []byte) *GatewayError {
	var parsed stripeErrorBody
	_ = json.Unmarshal(body, &parsed)
	kind := classifyStatus(status)
	if parsed.Error.Type == "authentication_error" {
		kind = Misconfiguration
	}
	msg := parsed.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &GatewayError{
		Kind:       kind,
		StatusCode: status,
		Code:       parsed.Error.Code,
		Message:    msg,
		Err:        fmt.Errorf("stripe %s", parsed.Error.Type),
	}
}
