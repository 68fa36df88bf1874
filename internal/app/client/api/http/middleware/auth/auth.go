package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/domain/tenant"
)

// Sessions проверка токена сессии устройства
type Sessions interface {
	ValidateSession(ctx context.Context, token string) (*tenant.Session, error)
	CurrentUser() (tenant.User, bool)
	Resume(ctx context.Context, token string) (tenant.User, error)
}

type Auth struct {
	sessions Sessions
	log      *slog.Logger
}

func New(sessions Sessions, log *slog.Logger) *Auth {
	return &Auth{
		sessions: sessions,
		log:      log.With("component", "auth_middleware"),
	}
}

type contextKey string

const UserKey contextKey = "user"

// Middleware пускает запрос только с действующим токеном сессии устройства.
// Если токен принадлежит не активному пользователю, контекст арендатора переключается на него.
func (a *Auth) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		header := ctx.Header("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			a.log.Warn("Missing bearer token", "path", ctx.URL().Path)
			a.unauthorized(ctx)
			return
		}

		sess, err := a.sessions.ValidateSession(ctx.Context(), token)
		if err != nil {
			a.log.Warn("Session rejected", "error", err)
			a.unauthorized(ctx)
			return
		}

		u, active := a.sessions.CurrentUser()
		if !active || u.ID != sess.UserID || u.TenantID != sess.TenantID {
			if u, err = a.sessions.Resume(ctx.Context(), token); err != nil {
				a.log.Warn("Session resume failed", "error", err)
				a.unauthorized(ctx)
				return
			}
		}

		next(huma.WithContext(ctx, context.WithValue(ctx.Context(), UserKey, u)))
	}
}

func (a *Auth) unauthorized(ctx huma.Context) {
	ctx.SetStatus(http.StatusUnauthorized)
	ctx.SetHeader("Content-Type", "application/json")
	if err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{"error": "Unauthorized"}); err != nil {
		a.log.Error("Failed to write response", "error", err)
	}
}

// GetUser пользователь, прошедший проверку токена
func GetUser(ctx context.Context) (tenant.User, bool) {
	u, ok := ctx.Value(UserKey).(tenant.User)
	return u, ok
}
