package middleware

import (
	"net/http"

	errors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/transport"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

// RequirePermissions lets the request through when the user holds any of permissions.
// Administrators always pass.
func RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			base := transport.NewBaseHandler(logger.From(r.Context()))

			user, ok := auth.UserFromContext(r.Context())
			if !ok || user == nil {
				base.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if !user.HasAnyPermission(permissions) {
				logger.From(r.Context()).Warn("access denied: user lacks required permissions",
					"user_id", user.ID,
					"required_permissions", permissions,
					"user_permissions", user.Permissions)
				base.HandleServiceError(w, errors.ErrUnauthorizedAccess)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
