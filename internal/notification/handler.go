package notification

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/transport"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

type ServiceAPI interface {
	Subscribe(ctx context.Context, actor *auth.User, dto SubscribeDTO) (*SubscribeResult, error)
	Unsubscribe(ctx context.Context, actor *auth.User, dto UnsubscribeDTO) error
	ListFailures(ctx context.Context, actor *auth.User, limit int) ([]*Failure, error)
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

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto SubscribeDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	res, err := h.Service.Subscribe(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Throttled {
		status = http.StatusOK
	}
	h.WriteJSON(w, status, res)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto UnsubscribeDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := h.Service.Unsubscribe(r.Context(), actor, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit := transport.QueryInt(r, "limit", DefaultFailureListLimit, 1000)
	failures, err := h.Service.ListFailures(r.Context(), actor, limit)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"failures": failures})
}
