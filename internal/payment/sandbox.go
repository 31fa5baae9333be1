package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox fabricates intents locally so the checkout flow can be exercised
// without gateway credentials. Created intents are kept in memory.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]IntentRequest
}

func (*Sandbox) Name() string { return "sandbox" }

// CreateIntent returns a deterministic intent per idempotency key.
func (s *Sandbox) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if req.AmountMinor <= 0 {
		return Intent{}, &GatewayError{Kind: InvalidRequest, Message: "amount must be positive"}
	}
	seed := req.IdempotencyKey
	if seed == "" {
		seed = uuid.NewString()
	}
	sum := sha256.Sum256([]byte(seed))
	id := "pi_sandbox_" + hex.EncodeToString(sum[:12])

	s.mu.Lock()
	if s.intents == nil {
		s.intents = map[string]IntentRequest{}
	}
	s.intents[id] = req
	s.mu.Unlock()

	return Intent{
		Provider:     s.Name(),
		ID:           id,
		ClientSecret: id + "_secret_" + hex.EncodeToString(sum[12:20]),
		Status:       "requires_payment_method",
		AmountMinor:  req.AmountMinor,
		Currency:     strings.ToLower(req.Currency),
	}, nil
}

// Lookup returns the request an intent was created from.
func (s *Sandbox) Lookup(id string) (IntentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.intents[id]
	return req, ok
}
