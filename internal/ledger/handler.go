package ledger

import (
	"net/http"
	"strconv"

	"norvia-broker/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Verify walks the journal hash chain. ?limit bounds the number of entries checked.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit", Code: "INVALID_INPUT"})
			return
		}
		limit = n
	}
	res, err := h.svc.Verify(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
