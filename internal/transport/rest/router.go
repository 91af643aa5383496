package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/leave"
	"github.com/marvellous-media/marvellous-manager/internal/notification"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
	"github.com/marvellous-media/marvellous-manager/internal/swap"
	"github.com/marvellous-media/marvellous-manager/internal/task"
	"github.com/marvellous-media/marvellous-manager/internal/transport/middleware"
	"github.com/marvellous-media/marvellous-manager/internal/transport/swagger"
	"github.com/marvellous-media/marvellous-manager/internal/user"
)

const (
	APIPrefix      = "/api/v1"
	RealtimePrefix = "/realtime"
)

// Handlers groups everything the router mounts. Nil handlers leave their routes out.
type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	User         *user.Handler
	Shift        *shift.Handler
	Leave        *leave.Handler
	Swap         *swap.Handler
	Task         *task.Handler
	Notification *notification.Handler
	Realtime     http.Handler
}

type Options struct {
	AllowedOrigins string
	RBAC           *auth.RBACAuthorization
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) {
	rbac := opts.RBAC
	if rbac == nil {
		rbac = auth.NewRBACAuthorization(nil, logger)
	}

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger, RealtimePrefix))

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	if h.Realtime != nil {
		router.Handle(RealtimePrefix+"/*", h.Realtime)
	}

	router.Route(APIPrefix, func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(middleware.UserContext)

			if h.User != nil {
				registerUserRoutes(pr, h.User, rbac)
			}
			if h.Leave != nil {
				registerLeaveRoutes(pr, h.Leave, rbac)
			}
			if h.Shift != nil {
				registerShiftRoutes(pr, h.Shift, rbac)
			}
			if h.Swap != nil {
				registerSwapRoutes(pr, h.Swap, rbac)
			}
			if h.Task != nil {
				registerTaskRoutes(pr, h.Task, rbac)
			}
			if h.Notification != nil {
				pr.Post("/push-subscriptions", h.Notification.Subscribe)
				pr.Delete("/push-subscriptions", h.Notification.Unsubscribe)
				pr.With(rbac.Middleware(auth.PermViewNotifyErrors)).Get("/notification-failures", h.Notification.ListFailures)
			}
		})
	})
}

func registerUserRoutes(r chi.Router, h *user.Handler, rbac *auth.RBACAuthorization) {
	r.Get("/users/me", h.GetCurrentUser)
	r.Get("/users", h.ListUsers)

	r.Group(func(mr chi.Router) {
		mr.Use(middleware.RequirePermissions(auth.PermManageUsers))
		mr.Post("/users", h.CreateUser)
		mr.Patch("/users/{id}", h.UpdateUser)
		mr.With(rbac.RequireAdmin()).Delete("/users/{id}", h.DeleteUser)
	})

	r.With(rbac.Middleware(auth.PermManageBalances)).Put("/users/{id}/balance", h.SetBalance)
}

func registerLeaveRoutes(r chi.Router, h *leave.Handler, rbac *auth.RBACAuthorization) {
	r.Get("/users/{id}/leave-balance", h.GetBalance)
	r.With(rbac.Middleware(auth.PermManageBalances)).Get("/leave-balances", h.BalanceReport)

	r.Route("/leave-requests", func(lr chi.Router) {
		lr.Get("/", h.ListRequests)
		lr.Post("/", h.SubmitRequest)
		lr.Delete("/{id}", h.DeleteRequest)

		lr.Group(func(ar chi.Router) {
			ar.Use(rbac.RequireApproveRequests())
			ar.Patch("/{id}/approve", h.ApproveRequest)
			ar.Patch("/{id}/reject", h.RejectRequest)
		})
	})
}

func registerShiftRoutes(r chi.Router, h *shift.Handler, rbac *auth.RBACAuthorization) {
	r.Route("/shifts", func(sr chi.Router) {
		sr.Get("/", h.ListShifts)
		sr.Post("/", h.CreateShift)
		sr.Get("/{id}", h.GetShift)
		sr.Patch("/{id}", h.UpdateShift)
		sr.Delete("/{id}", h.DeleteShift)
	})

	r.Route("/shift-templates", func(tr chi.Router) {
		tr.Get("/", h.ListTemplates)
		tr.Group(func(mr chi.Router) {
			mr.Use(rbac.Middleware(auth.PermManageTemplates))
			mr.Post("/", h.CreateTemplate)
			mr.Patch("/{id}", h.UpdateTemplate)
			mr.Delete("/{id}", h.DeleteTemplate)
		})
	})
}

func registerSwapRoutes(r chi.Router, h *swap.Handler, rbac *auth.RBACAuthorization) {
	r.Route("/swap-requests", func(sr chi.Router) {
		sr.Get("/", h.ListSwaps)
		sr.Post("/", h.CreateSwap)
		sr.Patch("/{id}/reject", h.RejectSwap)
		sr.Delete("/{id}", h.DeleteSwap)
		sr.With(rbac.RequireApproveRequests()).Patch("/{id}/approve", h.ApproveSwap)
	})
}

func registerTaskRoutes(r chi.Router, h *task.Handler, rbac *auth.RBACAuthorization) {
	r.Route("/boards", func(br chi.Router) {
		br.Get("/", h.ListBoards)
		br.Get("/{id}/tasks", h.ListTasks)
		br.Post("/{id}/tasks", h.CreateTask)

		br.Group(func(mr chi.Router) {
			mr.Use(rbac.Middleware(auth.PermManageTasks))
			mr.Post("/", h.CreateBoard)
			mr.Put("/{id}", h.UpdateBoard)
			mr.Delete("/{id}", h.DeleteBoard)
		})
	})

	r.Route("/tasks/{id}", func(tr chi.Router) {
		tr.Get("/", h.GetTask)
		tr.Patch("/", h.UpdateTask)
		tr.Delete("/", h.DeleteTask)
		tr.Post("/assignees", h.AssignTask)
		tr.Delete("/assignees/{userID}", h.UnassignTask)
		tr.Post("/subtasks", h.AddSubtask)
	})

	r.Route("/subtasks", func(sr chi.Router) {
		sr.Patch("/{id}", h.ToggleSubtask)
		sr.Delete("/{id}", h.DeleteSubtask)
	})
}
