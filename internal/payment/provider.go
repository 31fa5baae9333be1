// Package payment talks to the payment gateway: it opens transaction intents
// and authenticates the confirmations the gateway sends back.
package payment

import (
	"context"
)

// IntentRequest captures what the gateway needs to open a transaction intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	Description    string
	ReceiptEmail   string
	IdempotencyKey string
}

// Intent is the gateway's view of a pending charge.
type Intent struct {
	Provider     string
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Currency     string
}

// Event is a verified gateway notification.
type Event struct {
	ID            string
	Type          string
	TransactionID string
	AmountMinor   int64
	Currency      string
	Status        string
	Metadata      map[string]string
	Payload       []byte
}

// EventPaymentSucceeded is the event type that confirms a charge.
const EventPaymentSucceeded = "payment_intent.succeeded"

// Gateway abstracts the operations required from an upstream payment provider.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}
