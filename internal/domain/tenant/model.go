package tenant

import (
	"time"
)

// Role роль пользователя внутри арендатора
type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// User активный пользователь устройства
type User struct {
	ID       string `json:"id" validate:"required,uuid"`
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Role     Role   `json:"role" validate:"required,oneof=owner staff"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

// Profile серверный профиль пользователя, которым проверяются заявленные данные
type Profile struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

// Action действие над ресурсом
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReserve Action = "reserve"
	ActionPurge   Action = "purge"
	ActionManage  Action = "manage"
)

// Severity важность события безопасности
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EventType тип события журнала аудита
type EventType string

const (
	EventLogin               EventType = "auth_login"
	EventLogout              EventType = "auth_logout"
	EventPermissionDenied    EventType = "permission_denied"
	EventDataAccessViolation EventType = "data_access_violation"
	EventSessionCreated      EventType = "session_created"
	EventSessionExpired      EventType = "session_expired"
	EventSessionRecreated    EventType = "session_recreated"
	EventSecurityBreach      EventType = "security_breach_detected"
	EventTenantPurged        EventType = "tenant_purged"
	EventSyncConflict        EventType = "sync_conflict_resolved"
)

// Event запись журнала аудита; после добавления не изменяется
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Action    string            `json:"action,omitempty"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Session сессия устройства; токен хранится только в виде хэша
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Role        Role      `json:"role"`
	TokenHash   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Invalidated bool      `json:"invalidated"`
}

// Expired сообщает, истекла ли сессия к моменту now
func (s Session) Expired(now time.Time) bool {
	return s.Invalidated || !now.Before(s.ExpiresAt)
}
