package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-tours/internal/common"
	"github.com/noah-isme/backend-tours/internal/obs"
)

// Handler serves the checkout endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.Fail(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var req Request
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.Create(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, res)
}

// Quote handles POST /api/v1/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.Fail(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := h.Svc.Quote(r.Context(), req.Cart, req.DiscountCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := QuoteResult{Success: true, Pricing: pricingView(q.Breakdown, h.Svc.currency())}
	if q.Applied {
		out.DiscountCode = q.Rule.Code
	}
	common.JSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		common.Fail(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
	case errors.Is(err, io.EOF):
		common.Fail(w, http.StatusBadRequest, common.CodeBadRequest, "request body is required", nil)
	default:
		common.Fail(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
	}
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := common.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger := obs.WithRequest(r.Context(), h.Logger)
		logger.Error().Err(err).Str("code", appErr.Code).Msg("checkout failed")
	}
	common.FailWith(w, err)
}
