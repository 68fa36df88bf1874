package record

import (
	"encoding/json"
	"time"
)

// Envelope синхронизационные метаданные, которые несет каждая запись
type Envelope struct {
	SyncStatus   SyncStatus `json:"sync_status"`
	LastModified time.Time  `json:"last_modified"`
	Version      int64      `json:"version" validate:"gte=0"`
	// BaseVersion последняя версия, подтвержденная сервером; расхождение с серверной версией означает конфликт
	BaseVersion int64  `json:"base_version" validate:"gte=0"`
	Deleted     bool   `json:"deleted"`
	TenantID    string `json:"tenant_id" validate:"required,uuid"`
}

// Meta дает доступ к конверту записи, в которую он встроен
func (e *Envelope) Meta() *Envelope {
	return e
}

// Entry хранимая и передаваемая форма записи: конверт плюс непрозрачные данные.
// Data декодируется в типизированную запись по Table.
type Entry struct {
	Table Table  `json:"table"`
	ID    string `json:"id"`
	Envelope
	Data json.RawMessage `json:"data"`
}

// Record типизированная запись одной из таблиц
type Record interface {
	Table() Table
	RecordID() string
	Meta() *Envelope
}

// ListFilter фильтр выборки записей из локального хранилища
type ListFilter struct {
	TenantID       string
	Status         SyncStatus
	IncludeDeleted bool
	Limit          int
}

// stampPrecision точность меток времени, которую сохраняют обе стороны
const stampPrecision = time.Millisecond

// Stamp отмечает локальное изменение: lastModified строго растет, version увеличивается,
// запись снова ожидает отправки.
func Stamp(env *Envelope, now time.Time) {
	now = now.UTC().Truncate(stampPrecision)
	if !now.After(env.LastModified) {
		now = env.LastModified.UTC().Truncate(stampPrecision).Add(stampPrecision)
	}

	env.LastModified = now
	env.Version++
	env.SyncStatus = StatusPending
}

// SoftDelete единственный способ удалить запись локально: выставляет флаг и штампует изменение
func SoftDelete(env *Envelope, now time.Time) {
	env.Deleted = true
	Stamp(env, now)
}
