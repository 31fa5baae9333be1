package common

import (
	"encoding/json"
	"net/http"
)

// FailureBody is the checkout-facing failure envelope.
type FailureBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail renders {success:false, code, message}.
func Fail(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, FailureBody{Success: false, Code: code, Message: message, Details: details})
}

// FailWith renders err, using the AppError status and code when present.
func FailWith(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = CodeBadRequest
	}
	Fail(w, status, code, appErr.Message, appErr.Details)
}
