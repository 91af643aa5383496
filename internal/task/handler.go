package task

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
	ListBoards(ctx context.Context) ([]*Board, error)
	CreateBoard(ctx context.Context, actor *auth.User, dto BoardDTO) (*Board, error)
	UpdateBoard(ctx context.Context, actor *auth.User, id string, dto BoardDTO) (*Board, error)
	DeleteBoard(ctx context.Context, actor *auth.User, id string) error

	ListTasks(ctx context.Context, boardID string) ([]*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, actor *auth.User, boardID string, dto CreateTaskDTO) (*Task, error)
	UpdateTask(ctx context.Context, actor *auth.User, id string, dto UpdateTaskDTO) (*Task, error)
	DeleteTask(ctx context.Context, actor *auth.User, id string) error
	Assign(ctx context.Context, actor *auth.User, taskID string, dto AssignDTO) (*Task, error)
	Unassign(ctx context.Context, actor *auth.User, taskID, userID string) (*Task, error)

	AddSubtask(ctx context.Context, actor *auth.User, taskID string, dto SubtaskDTO) (*Subtask, error)
	ToggleSubtask(ctx context.Context, actor *auth.User, id string, dto ToggleSubtaskDTO) (*Subtask, error)
	DeleteSubtask(ctx context.Context, actor *auth.User, id string) error
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

func (h *Handler) ListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.Service.ListBoards(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"boards": boards})
}

func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto BoardDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	b, err := h.Service.CreateBoard(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto BoardDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	b, err := h.Service.UpdateBoard(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteBoard(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Service.ListTasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto CreateTaskDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	t, err := h.Service.CreateTask(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.Logger.Warn("CreateTask: service error", "error", err, "actor_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto UpdateTaskDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	t, err := h.Service.UpdateTask(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteTask(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto AssignDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	t, err := h.Service.Assign(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) UnassignTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	t, err := h.Service.Unassign(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) AddSubtask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto SubtaskDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	st, err := h.Service.AddSubtask(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var dto ToggleSubtaskDTO
	if r.ContentLength > 0 && !h.DecodeJSON(w, r, &dto) {
		return
	}
	st, err := h.Service.ToggleSubtask(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) DeleteSubtask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteSubtask(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
