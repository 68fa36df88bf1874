package record

import (
	"context"
)

// Repository локальное хранилище записей: одна таблица на сущность
type Repository interface {
	Get(ctx context.Context, table Table, id string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	List(ctx context.Context, table Table, filter ListFilter) ([]Entry, error)
	Count(ctx context.Context, table Table, tenantID string) (int, error)

	// Acknowledge фиксирует принятую сервером версию как базовую и переводит запись в synced,
	// только если ее версия не изменилась с момента отправки
	Acknowledge(ctx context.Context, table Table, id string, version int64) (bool, error)
	SetStatus(ctx context.Context, table Table, id string, status SyncStatus) error

	// PurgeTenant физически удаляет все записи арендатора
	PurgeTenant(ctx context.Context, tenantID string) (int64, error)
}
