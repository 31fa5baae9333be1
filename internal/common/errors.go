package common

import (
	"errors"
	"net/http"
)

// Canonical error codes returned to API callers.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodeCartTooLarge   = "CART_TOO_LARGE"
	CodeBadRequest     = "BAD_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL"
	CodeGatewayInvalid = "PAYMENT_INVALID_REQUEST"
	CodeGatewayDown    = "PAYMENT_UNAVAILABLE"
)

// AppError carries the code and status rendered to API callers.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation builds a 400 error carrying a caller-facing message.
func Validation(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, err)
}

// AsAppError unwraps err into an AppError, wrapping unknown errors as internal failures.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}
