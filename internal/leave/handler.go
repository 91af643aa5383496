package leave

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/transport"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, viewer *auth.User, filter Filter) ([]*LeaveRequest, error)
	Submit(ctx context.Context, actor *auth.User, dto SubmitDTO) (*LeaveRequest, error)
	Approve(ctx context.Context, actor *auth.User, id string, dto ReviewDTO) (*LeaveRequest, error)
	Reject(ctx context.Context, actor *auth.User, id string, dto ReviewDTO) (*LeaveRequest, error)
	Delete(ctx context.Context, actor *auth.User, id string) error
	GetBalance(ctx context.Context, actor *auth.User, userID string) (*Balance, error)
	BalanceReport(ctx context.Context, actor *auth.User) ([]Balance, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return u, true
}

// ListRequests handles GET /leave-requests?status=&user_id=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.principal(w, r)
	if !ok {
		return
	}

	filter := Filter{
		UserID: r.URL.Query().Get("user_id"),
		Status: r.URL.Query().Get("status"),
	}
	requests, err := h.Service.List(r.Context(), viewer, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto SubmitDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	req, err := h.Service.Submit(r.Context(), actor, dto)
	if err != nil {
		h.Logger.Warn("SubmitRequest: service error", "error", err, "actor_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) decodeReview(w http.ResponseWriter, r *http.Request) (ReviewDTO, bool) {
	var dto ReviewDTO
	if r.ContentLength == 0 {
		return dto, true
	}
	return dto, h.DecodeJSON(w, r, &dto)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	dto, ok := h.decodeReview(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Approve(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	dto, ok := h.decodeReview(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Reject(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBalance handles GET /users/{id}/leave-balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "me" {
		userID = actor.ID
	}

	b, err := h.Service.GetBalance(r.Context(), actor, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) BalanceReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	report, err := h.Service.BalanceReport(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"balances": report})
}
