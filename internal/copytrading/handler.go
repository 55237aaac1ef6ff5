package copytrading

import (
	"context"
	"net/http"

	"norvia-broker/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListTraders(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListTraders(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) GetTrader(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTrader(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) CreateTrader(w http.ResponseWriter, r *http.Request) {
	var req TraderInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.svc.CreateTrader(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) Copy(w http.ResponseWriter, r *http.Request, userID string) {
	var req CopyInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.svc.Copy(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	rels, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.svc.ListRequests(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"relationships": rels, "requests": reqs})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.svc.Stop(r.Context(), userID, chi.URLParam(r, "ref")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request, userID string) {
	var req RequestInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	q, err := h.svc.Request(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, q)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ApproveCopy(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.ApproveCopy)
}

func (h *Handler) RejectCopy(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.RejectCopy)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.ApproveRequest)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.RejectRequest)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, ref string) (Decision, error)) {
	out, err := fn(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request, userID string) {
	var req ApplicationInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.svc.Apply(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := h.svc.ListApplications(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Applications(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Applications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.ApproveApplication)
}

func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.RejectApplication)
}
