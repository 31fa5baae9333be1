package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/backend-tours/internal/resilience"
)

// ErrorKind classifies gateway failures by how the caller should react.
type ErrorKind int

const (
	// InvalidRequest means the gateway rejected the data; the shopper should check it.
	InvalidRequest ErrorKind = iota + 1
	// ServiceUnavailable is transient; the caller may retry shortly.
	ServiceUnavailable
	// Misconfiguration is a credential or setup failure on our side.
	Misconfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case ServiceUnavailable:
		return "service_unavailable"
	case Misconfiguration:
		return "misconfiguration"
	default:
		return "unknown"
	}
}

// GatewayError wraps a failed gateway call.
type GatewayError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("payment gateway %s (%d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("payment gateway %s: %s", e.Kind, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// KindOf reports the kind of a gateway error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}

// classifyStatus maps an HTTP status from the gateway to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Misconfiguration
	case status == http.StatusTooManyRequests, status >= 500:
		return ServiceUnavailable
	default:
		return InvalidRequest
	}
}

// classifyTransport maps an error from the HTTP layer to a GatewayError.
func classifyTransport(err error) *GatewayError {
	var statusErr *resilience.StatusError
	switch {
	case errors.As(err, &statusErr):
		return &GatewayError{Kind: classifyStatus(statusErr.StatusCode), StatusCode: statusErr.StatusCode, Err: err}
	case errors.Is(err, resilience.ErrOpenCircuit):
		return &GatewayError{Kind: ServiceUnavailable, Message: "gateway circuit open", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &GatewayError{Kind: ServiceUnavailable, Message: "gateway timed out", Err: err}
	default:
		return &GatewayError{Kind: ServiceUnavailable, Err: err}
	}
}
