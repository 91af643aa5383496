package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
)

// Authenticator resolves the bearer token a socket client presents.
type Authenticator interface {
	Principal(ctx context.Context, token string) (*auth.User, error)
}

const (
	closeMissingToken = 4001
	closeInvalidToken = 4002
)

// NewHandler serves the change feed at prefix. Clients pass ?token=<jwt>.
func NewHandler(prefix string, hub *Hub, authn Authenticator, buffer int, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		token := req.URL.Query().Get("token")
		if token == "" {
			_ = session.Close(closeMissingToken, "missing token")
			return
		}

		principal, err := authn.Principal(req.Context(), token)
		if err != nil {
			logger.Warn("realtime: rejected session", "error", err)
			_ = session.Close(closeInvalidToken, "invalid token")
			return
		}

		client := NewClient(uuid.NewString(), principal.ID, buffer)
		hub.Register(client)
		defer hub.Unregister(client)

		logger.Debug("realtime: client connected", "client_id", client.ID, "user_id", principal.ID)

		go func() {
			for msg := range client.Send {
				if err := session.Send(string(msg)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				hub.Unsubscribe(client)
				continue
			}
			hub.Subscribe(client, parsed.Tables)
		}
	})
}
