// Package booking turns confirmed payments into durable bookings, exactly
// once per transaction id.
package booking

import (
	"errors"

	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

var (
	// ErrMissingCart means the confirmation metadata holds no cart at all.
	// Retrying cannot fix it.
	ErrMissingCart = errors.New("booking: confirmation carries no cart")
	// ErrMissingTransaction means the confirmation has no transaction id.
	ErrMissingTransaction = errors.New("booking: transaction id is required")
)

// Confirmation is a cleared payment as reported by the gateway.
type Confirmation struct {
	TransactionID string            `json:"transactionId"`
	AmountMinor   int64             `json:"amountMinor"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Outcome classifies a reconciliation.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeNeedsReview Outcome = "needs_review"
)

// Result is what Reconcile did and the booking it concerns.
type Result struct {
	Outcome Outcome
	Booking dbgen.Booking
}
