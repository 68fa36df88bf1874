package tenant

import (
	"context"
	"time"
)

// SessionRepository персистентные сессии устройства
type SessionRepository interface {
	Create(ctx context.Context, s Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Invalidate(ctx context.Context, id string) error
	// ExpireBefore помечает истекшие сессии недействительными и возвращает их
	ExpireBefore(ctx context.Context, now time.Time) ([]Session, error)
	DeleteTenant(ctx context.Context, tenantID string) (int64, error)
}

// AuditRepository журнал аудита, только добавление и чтение
type AuditRepository interface {
	Append(ctx context.Context, e Event) error
	// Recent возвращает последние события, новые первыми; prefix фильтрует по началу типа события
	Recent(ctx context.Context, limit int, prefix string) ([]Event, error)
}

// ProfileFetcher получает серверный профиль пользователя
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
}

// Purger удаляет данные арендатора из одного хранилища
type Purger interface {
	PurgeTenant(ctx context.Context, tenantID string) (int64, error)
}

// PurgerFunc адаптер функции к Purger
type PurgerFunc func(ctx context.Context, tenantID string) (int64, error)

func (f PurgerFunc) PurgeTenant(ctx context.Context, tenantID string) (int64, error) {
	return f(ctx, tenantID)
}
