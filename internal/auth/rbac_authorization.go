package auth

import (
	"log/slog"
	"net/http"

	errors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/transport"
)

// RBACAuthorization guards routes by permission. Services repeat the same checks.
type RBACAuthorization struct {
	checker PermissionChecker
	base    *transport.BaseHandler
	logger  *slog.Logger
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	if checker == nil {
		checker = NewPermissionChecker()
	}
	return &RBACAuthorization{
		checker: checker,
		base:    transport.NewBaseHandler(logger),
		logger:  logger,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			ra.logger.Warn("authorization check failed: user not found in context")
			ra.base.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !user.HasPermission(permission) {
			ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"role", user.Role,
				"required_permission", permission)
			ra.base.HandleServiceError(w, errors.ErrUnauthorizedAccess)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}

func (ra *RBACAuthorization) RequireApproveRequests() func(http.Handler) http.Handler {
	return ra.Middleware(PermApproveRequests)
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || user == nil {
				ra.base.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if !ra.checker.IsAdmin(user) {
				ra.logger.WarnContext(r.Context(), "access denied: admin permissions required", "user_id", user.ID)
				ra.base.HandleServiceError(w, errors.ErrUnauthorizedAccess)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
