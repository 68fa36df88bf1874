package sync

import (
	"context"
	"encoding/json"
	"time"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
)

// RemoteRow строка таблицы удаленного бэкенда
type RemoteRow struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	Data            json.RawMessage `json:"data"`
	Version         int64           `json:"version"`
	Deleted         bool            `json:"deleted"`
	UpdatedAt       string          `json:"updated_at"`
	ServerUpdatedAt time.Time       `json:"server_updated_at"`
}

// Cursor позиция последней забранной строки таблицы
type Cursor struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

// Remote таблицы удаленного бэкенда
type Remote interface {
	Prober
	// Select возвращает строки арендатора, измененные после курсора, по возрастанию (server_updated_at, id)
	Select(ctx context.Context, table record.Table, tenantID string, after Cursor, limit int) ([]RemoteRow, error)
	Get(ctx context.Context, table record.Table, id string) (*RemoteRow, error)
	// Upsert записывает строку, если серверная версия все еще равна expectedVersion (0 для новой записи).
	// Иначе возвращает ErrStaleWrite.
	Upsert(ctx context.Context, table record.Table, row RemoteRow, expectedVersion int64) error
	Count(ctx context.Context, table record.Table, tenantID string) (int, error)
}

// CursorRepository хранит курсоры pull по таблицам
type CursorRepository interface {
	GetCursor(ctx context.Context, tenantID string, table record.Table) (Cursor, error)
	SetCursor(ctx context.Context, tenantID string, table record.Table, c Cursor) error
}

// TenantGuard источник текущего пользователя и проверка изоляции арендаторов
type TenantGuard interface {
	CurrentUser() (tenant.User, bool)
	EnforceDataIsolation(ctx context.Context, resourceTenantID string) bool
	Audit(ctx context.Context, e tenant.Event)
}

// Queue очередь исходящих изменений
type Queue interface {
	Enqueue(ctx context.Context, table record.Table, kind queue.Kind, recordID string, payload json.RawMessage, priority queue.Priority) (string, error)
	EnqueueEntry(ctx context.Context, kind queue.Kind, e record.Entry, priority queue.Priority) (string, error)
	DequeueBatch(ctx context.Context, max int) ([]queue.PriorityOperation, error)
	MarkCompleted(ctx context.Context, op queue.PriorityOperation) error
	MarkFailed(ctx context.Context, op queue.PriorityOperation, cause error) error
	MarkRetry(ctx context.Context, op *queue.PriorityOperation, cause error) error
	Release(ctx context.Context, op queue.PriorityOperation) error
	HasOpen(ctx context.Context, table record.Table, recordID string) (bool, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Transactor выполняет fn в транзакции локального хранилища
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
