package record

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Table имя таблицы локального хранилища и удаленного бэкенда
type Table string

const (
	TableContacts     Table = "contacts"
	TableGroups       Table = "groups"
	TableTemplates    Table = "templates"
	TableAssets       Table = "assets"
	TableActivityLogs Table = "activity_logs"
	TableQuotas       Table = "quotas"
	TableProfiles     Table = "profiles"
	TablePayments     Table = "payments"
	TableSessions     Table = "sessions"
)

var allTables = []Table{
	TableContacts,
	TableGroups,
	TableTemplates,
	TableAssets,
	TableActivityLogs,
	TableQuotas,
	TableProfiles,
	TablePayments,
	TableSessions,
}

// AllTables возвращает все таблицы с сущностями
func AllTables() []Table {
	out := make([]Table, len(allTables))
	copy(out, allTables)
	return out
}

// SyncableTables возвращает таблицы, которые забираются с сервера на каждом проходе.
// Сессии локальны для устройства и только отправляются.
func SyncableTables() []Table {
	out := make([]Table, 0, len(allTables)-1)
	for _, t := range allTables {
		if t != TableSessions {
			out = append(out, t)
		}
	}
	return out
}

// ParseTable разбирает имя таблицы
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (Table) Schema(_ huma.Registry) *huma.Schema {
	enum := make([]any, 0, len(allTables))
	for _, t := range allTables {
		enum = append(enum, string(t))
	}
	return &huma.Schema{
		Type:        "string",
		Enum:        enum,
		Description: "Таблица синхронизируемых записей",
		Examples:    []any{string(TableContacts)},
	}
}

// Validate реализует интерфейс huma.Validatable.
func (t Table) Validate() error {
	for _, known := range allTables {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, string(t))
}

// String возвращает строковое представление таблицы.
func (t Table) String() string {
	return string(t)
}

// SyncStatus состояние записи относительно сервера
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
)
