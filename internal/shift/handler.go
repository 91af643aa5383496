package shift

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/transport"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, filter Filter) ([]*Shift, error)
	GetByID(ctx context.Context, id string) (*Shift, error)
	Create(ctx context.Context, actor *auth.User, dto CreateShiftDTO) ([]*Shift, error)
	Update(ctx context.Context, actor *auth.User, id string, dto UpdateShiftDTO, action RecurrenceAction) ([]*Shift, error)
	Delete(ctx context.Context, actor *auth.User, id string, action RecurrenceAction) ([]*Shift, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
	CreateTemplate(ctx context.Context, actor *auth.User, dto TemplateDTO) (*Template, error)
	UpdateTemplate(ctx context.Context, actor *auth.User, id string, dto TemplateDTO) (*Template, error)
	DeleteTemplate(ctx context.Context, actor *auth.User, id string) error
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

func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, appErrors.NewValidationFieldError(key, key+" must be RFC3339 or YYYY-MM-DD", appErrors.ErrCodeValidationFailed)
	}
	return &t, nil
}

func (h *Handler) recurrenceAction(w http.ResponseWriter, r *http.Request) (RecurrenceAction, bool) {
	action, ok := ParseRecurrenceAction(r.URL.Query().Get("action"))
	if !ok {
		h.HandleServiceError(w, appErrors.NewValidationFieldError("action", "action must be this, future or previous", appErrors.ErrCodeValidationFailed))
		return "", false
	}
	return action, true
}

// ListShifts handles GET /shifts?user_id=&from=&to=
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	shifts, err := h.Service.List(r.Context(), Filter{UserID: r.URL.Query().Get("user_id"), From: from, To: to})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"shifts": shifts})
}

func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	sh, err := h.Service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto CreateShiftDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	shifts, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.Logger.Warn("CreateShift: service error", "error", err, "actor_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{"shifts": shifts})
}

func (h *Handler) UpdateShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	action, ok := h.recurrenceAction(w, r)
	if !ok {
		return
	}

	var dto UpdateShiftDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	shifts, err := h.Service.Update(r.Context(), actor, chi.URLParam(r, "id"), dto, action)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"shifts": shifts})
}

func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	action, ok := h.recurrenceAction(w, r)
	if !ok {
		return
	}

	deleted, err := h.Service.Delete(r.Context(), actor, chi.URLParam(r, "id"), action)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": len(deleted)})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Service.ListTemplates(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto TemplateDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	t, err := h.Service.CreateTemplate(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto TemplateDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	t, err := h.Service.UpdateTemplate(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteTemplate(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
