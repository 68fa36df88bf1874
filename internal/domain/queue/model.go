package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"bizsync/internal/domain/record"
)

// Kind вид изменения записи
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Validate проверяет вид операции
func (k Kind) Validate() error {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
}

// Status состояние записи очереди
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal сообщает, завершена ли операция окончательно
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation запись очереди исходящих изменений
type Operation struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Table       record.Table    `json:"table"`
	Kind        Kind            `json:"operation"`
	RecordID    string          `json:"record_id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	RetryCount  int             `json:"retry_count"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
}

// Entry декодирует полезную нагрузку в хранимую форму записи
func (op Operation) Entry() (record.Entry, error) {
	var e record.Entry
	if err := json.Unmarshal(op.Payload, &e); err != nil {
		return record.Entry{}, fmt.Errorf("%w: operation %s: %v", ErrInvalidPayload, op.ID, err)
	}
	if e.Table != op.Table || e.ID != op.RecordID {
		return record.Entry{}, fmt.Errorf("%w: operation %s carries %s/%s", ErrInvalidPayload, op.ID, e.Table, e.ID)
	}
	return e, nil
}

// PriorityOperation свернутая операция для одной записи, готовая к отправке.
// Folded содержит идентификаторы поглощенных записей очереди.
type PriorityOperation struct {
	Operation
	Folded []string `json:"folded,omitempty"`
}

// IDs возвращает все идентификаторы записей очереди, которые покрывает операция
func (p PriorityOperation) IDs() []string {
	ids := make([]string, 0, len(p.Folded)+1)
	ids = append(ids, p.ID)
	return append(ids, p.Folded...)
}

// Stats количество записей очереди по статусам
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
