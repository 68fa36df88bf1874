package quota

import (
	"context"
	"time"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
)

// Repository хранилище резервов
type Repository interface {
	Insert(ctx context.Context, r Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	// OldestPending старейший резерв в статусе pending по квоте
	OldestPending(ctx context.Context, quotaID string) (*Reservation, error)
	// PendingSum сумма резервов в статусе pending, не истекших к now
	PendingSum(ctx context.Context, quotaID string, now time.Time) (int64, error)
	Update(ctx context.Context, r Reservation) error
	// ExpireBefore переводит просроченные pending резервы в expired
	ExpireBefore(ctx context.Context, quotaID string, now time.Time) (int64, error)
	List(ctx context.Context, quotaID string, limit int) ([]Reservation, error)
	DeleteTenant(ctx context.Context, tenantID string) (int64, error)
}

// Records доступ к записи квоты в локальном хранилище
type Records interface {
	Put(ctx context.Context, e *record.Entry) error
	FindQuota(ctx context.Context, tenantID, userID string) (*record.Entry, error)
}

// Queue постановка изменения квоты в очередь синхронизации
type Queue interface {
	EnqueueEntry(ctx context.Context, kind queue.Kind, e record.Entry, priority queue.Priority) (string, error)
	HasOpen(ctx context.Context, table record.Table, recordID string) (bool, error)
}

// Remote авторитетные счетчики квоты на сервере
type Remote interface {
	CheckQuotaUsage(ctx context.Context, userID string) (*RemoteUsage, error)
}

// Authorizer проверка прав активного пользователя
type Authorizer interface {
	CurrentUser() (tenant.User, bool)
	Authorize(ctx context.Context, action tenant.Action, resource, resourceTenantID string) error
}

// Transactor выполняет fn в немедленной транзакции локального хранилища
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
