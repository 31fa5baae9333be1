package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-tours/internal/common"
)

// Handler exposes the read-only price book.
type Handler struct {
	Book *PriceBook
}

// Tour handles GET /api/v1/tours/{id}.
func (h *Handler) Tour(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Book == nil {
		common.Fail(w, http.StatusInternalServerError, common.CodeInternal, "catalog not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.Fail(w, http.StatusBadRequest, common.CodeBadRequest, "tour id is required", nil)
		return
	}
	tours, err := h.Book.Tours(r.Context(), []string{id})
	if err != nil {
		common.FailWith(w, err)
		return
	}
	t, ok := tours[id]
	if !ok {
		common.FailWith(w, common.NewAppError(common.CodeNotFound, "tour not found", http.StatusNotFound, ErrUnknownTour))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "data": t})
}
