package client

import (
	"context"
	"errors"
	"fmt"

	"bizsync/internal/domain/tenant"
	"bizsync/internal/infrastructure/storage/sqlite"
)

// Login делает пользователя активным, создает сессию устройства и сохраняет ее токен.
// Заявленные арендатор и роль сверяются с серверным профилем, если сервер доступен.
func (a *App) Login(ctx context.Context, u tenant.User) (string, error) {
	if !a.Tenant.SetCurrentUser(ctx, u, tenant.Options{}) {
		return "", ErrLoginRejected
	}

	token, _, err := a.Tenant.CreateSession(ctx, u)
	if err != nil {
		a.Tenant.ClearCurrentUser(ctx)
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := a.state.Set(ctx, stateSessionToken, token); err != nil {
		return "", fmt.Errorf("save session token: %w", err)
	}

	a.Sync.RecordActivity()
	a.log.Info("User logged in", "user_id", u.ID, "tenant_id", u.TenantID, "role", u.Role)
	return token, nil
}

// Resume восстанавливает контекст по токену. Пустой token означает токен, сохраненный на устройстве.
func (a *App) Resume(ctx context.Context, token string) (tenant.User, error) {
	if token == "" {
		stored, err := a.state.Get(ctx, stateSessionToken)
		if errors.Is(err, sqlite.ErrStateNotFound) {
			return tenant.User{}, ErrNotLoggedIn
		}
		if err != nil {
			return tenant.User{}, fmt.Errorf("load session token: %w", err)
		}
		token = stored
	}

	u, err := a.Tenant.Resume(ctx, token)
	if err != nil {
		return tenant.User{}, err
	}
	if err := a.state.Set(ctx, stateSessionToken, token); err != nil {
		return tenant.User{}, fmt.Errorf("save session token: %w", err)
	}
	return u, nil
}

// Logout снимает контекст, инвалидирует сессию и забывает токен устройства
func (a *App) Logout(ctx context.Context) error {
	if _, ok := a.Tenant.CurrentUser(); !ok {
		if _, err := a.Resume(ctx, ""); err != nil {
			if errors.Is(err, ErrNotLoggedIn) {
				return nil
			}
			a.log.Debug("Stored session is not resumable", "error", err)
		}
	}

	a.Tenant.ClearCurrentUser(ctx)
	if err := a.state.Delete(ctx, stateSessionToken); err != nil && !errors.Is(err, sqlite.ErrStateNotFound) {
		return fmt.Errorf("forget session token: %w", err)
	}
	return nil
}

// CurrentUser активный пользователь
func (a *App) CurrentUser() (tenant.User, bool) {
	return a.Tenant.CurrentUser()
}
