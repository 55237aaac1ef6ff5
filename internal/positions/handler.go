package positions

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Position *model.Position `json:"position,omitempty"`
}

// Place keeps the {success, message} contract of the trade form: 400 for input and
// balance problems, 500 for anything unexpected.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req OpenInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, placeResponse{Message: err.Error()})
		return
	}
	pos, err := h.svc.Open(r.Context(), userID, req)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			httputil.WriteJSON(w, appErr.HTTPStatus(), placeResponse{Message: appErr.Message})
			return
		}
		logger.L().Error("place trade", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, placeResponse{Message: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, placeResponse{Success: true, Message: "trade placed", Position: pos})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	f := ListFilter{
		Status: types.PositionStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Asset:  types.AssetClass(strings.ToLower(strings.TrimSpace(q.Get("asset")))),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, apperr.InvalidInput("invalid limit"))
			return
		}
		f.Limit = n
	}
	items, err := h.svc.List(r.Context(), userID, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	pos, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.Close(r.Context(), userID, chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type takeTradeRequest struct {
	Handle string `json:"handle" validate:"required"`
	TakeTradeInput
}

func (h *Handler) TakeTrade(w http.ResponseWriter, r *http.Request) {
	var req takeTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Handle) == "" {
		httputil.WriteError(w, apperr.InvalidInput("handle is required"))
		return
	}
	pos, err := h.svc.TakeTrade(r.Context(), req.Handle, req.TakeTradeInput)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pos)
}

type markRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Price  string `json:"price" validate:"required,decimal_gt0"`
}

func (h *Handler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		httputil.WriteError(w, apperr.InvalidInput("invalid price"))
		return
	}
	n, err := h.svc.MarkPrice(r.Context(), req.Symbol, price)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"symbol": strings.ToUpper(req.Symbol), "price": price, "updated": n})
}

type refreshRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	price, n, err := h.svc.RefreshMark(r.Context(), req.Symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"symbol": strings.ToUpper(req.Symbol), "price": price, "updated": n})
}

type sweepRequest struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
	Asset  string `json:"asset" validate:"omitempty,oneof=crypto stock forex commodity"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=1000"`
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if r.ContentLength != 0 {
		if err := httputil.Decode(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	closed, err := h.svc.SweepExpired(r.Context(), SweepFilter{UserID: req.UserID, Asset: types.AssetClass(req.Asset)}, req.Limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"closed": len(closed), "positions": closed})
}
