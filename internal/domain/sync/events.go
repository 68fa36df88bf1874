package sync

import (
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/record"
)

// EventType тип события менеджера синхронизации
type EventType string

const (
	EventSyncStart        EventType = "sync_start"
	EventProgressUpdate   EventType = "progress_update"
	EventSyncComplete     EventType = "sync_complete"
	EventSyncError        EventType = "sync_error"
	EventConflictDetected EventType = "conflict_detected"
	EventStatusChange     EventType = "status_change"
	EventUserNotification EventType = "user_notification"
)

// Progress ход прохода
type Progress struct {
	Phase Phase        `json:"phase"`
	Table record.Table `json:"table,omitempty"`
	Done  int          `json:"done"`
	Total int          `json:"total,omitempty"`
}

// ConflictInfo сведения о найденном конфликте
type ConflictInfo struct {
	Table     record.Table    `json:"table"`
	RecordID  string          `json:"record_id"`
	Winner    conflict.Winner `json:"winner"`
	Manual    bool            `json:"manual"`
	AuditNote string          `json:"audit_note"`
}

// Event событие для подписчиков
type Event struct {
	Type     EventType     `json:"type"`
	At       time.Time     `json:"at"`
	From     State         `json:"from,omitempty"`
	To       State         `json:"to,omitempty"`
	Progress *Progress     `json:"progress,omitempty"`
	Result   *Result       `json:"result,omitempty"`
	Conflict *ConflictInfo `json:"conflict,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Listener обработчик событий
type Listener func(Event)

// Bus синхронная рассылка событий. Паника одного подписчика не мешает остальным.
type Bus struct {
	log *slog.Logger

	mu        stdsync.RWMutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewBus создает шину событий
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:       log,
		listeners: make(map[int]Listener),
	}
}

// Subscribe регистрирует подписчика и возвращает функцию отписки
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.order = append(b.order, id)

	var once stdsync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish доставляет событие всем подписчикам в порядке подписки
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event listener panicked", "event", e.Type, "panic", fmt.Sprint(r))
		}
	}()
	l(e)
}
