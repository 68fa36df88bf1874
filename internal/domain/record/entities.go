package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact контакт для рассылок
type Contact struct {
	Envelope  `json:"-"`
	ID        string   `json:"id" validate:"required,uuid"`
	Name      string   `json:"name" validate:"required,max=200"`
	Phone     string   `json:"phone,omitempty" validate:"omitempty,e164"`
	Email     string   `json:"email,omitempty" validate:"omitempty,email"`
	GroupIDs  []string `json:"group_ids,omitempty" validate:"omitempty,dive,uuid"`
	Notes     string   `json:"notes,omitempty" validate:"max=4000"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
	IsBlocked bool     `json:"is_blocked,omitempty"`
}

func (c *Contact) Table() Table     { return TableContacts }
func (c *Contact) RecordID() string { return c.ID }

// Group группа контактов
type Group struct {
	Envelope `json:"-"`
	ID       string   `json:"id" validate:"required,uuid"`
	Name     string   `json:"name" validate:"required,max=200"`
	Color    string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Notes    string   `json:"notes,omitempty" validate:"max=4000"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
}

func (g *Group) Table() Table     { return TableGroups }
func (g *Group) RecordID() string { return g.ID }

// Template шаблон сообщения
type Template struct {
	Envelope `json:"-"`
	ID       string   `json:"id" validate:"required,uuid"`
	Name     string   `json:"name" validate:"required,max=200"`
	Body     string   `json:"body" validate:"required"`
	AssetIDs []string `json:"asset_ids,omitempty" validate:"omitempty,dive,uuid"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
}

func (t *Template) Table() Table     { return TableTemplates }
func (t *Template) RecordID() string { return t.ID }

// Asset метаданные файла; содержимое хранится отдельно
type Asset struct {
	Envelope `json:"-"`
	ID       string `json:"id" validate:"required,uuid"`
	FileName string `json:"file_name" validate:"required,max=255"`
	MimeType string `json:"mime_type" validate:"required"`
	Size     int64  `json:"size" validate:"gte=0"`
	Checksum string `json:"checksum,omitempty" validate:"omitempty,sha256"`
	URL      string `json:"url,omitempty" validate:"omitempty,url"`
}

func (a *Asset) Table() Table     { return TableAssets }
func (a *Asset) RecordID() string { return a.ID }

// ActivityLog запись телеметрии о действиях пользователя
type ActivityLog struct {
	Envelope   `json:"-"`
	ID         string            `json:"id" validate:"required,uuid"`
	UserID     string            `json:"user_id" validate:"required,uuid"`
	Action     string            `json:"action" validate:"required,max=64"`
	Resource   string            `json:"resource,omitempty"`
	OccurredAt time.Time         `json:"occurred_at" validate:"required"`
	Details    map[string]string `json:"details,omitempty"`
}

func (a *ActivityLog) Table() Table     { return TableActivityLogs }
func (a *ActivityLog) RecordID() string { return a.ID }

// QuotaRecord лимит сообщений пользователя
type QuotaRecord struct {
	Envelope      `json:"-"`
	ID            string    `json:"id" validate:"required,uuid"`
	UserID        string    `json:"user_id" validate:"required,uuid"`
	MessagesLimit int64     `json:"messages_limit" validate:"gte=0"`
	MessagesUsed  int64     `json:"messages_used" validate:"gte=0,ltefield=MessagesLimit"`
	PeriodEnd     time.Time `json:"period_end,omitempty"`
}

func (q *QuotaRecord) Table() Table     { return TableQuotas }
func (q *QuotaRecord) RecordID() string { return q.ID }

// Remaining остаток лимита без учета резервов
func (q *QuotaRecord) Remaining() int64 {
	return q.MessagesLimit - q.MessagesUsed
}

// Profile профиль пользователя в рамках арендатора
type Profile struct {
	Envelope    `json:"-"`
	ID          string `json:"id" validate:"required,uuid"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	DisplayName string `json:"display_name,omitempty" validate:"max=200"`
	Role        string `json:"role" validate:"required,oneof=owner staff"`
}

func (p *Profile) Table() Table     { return TableProfiles }
func (p *Profile) RecordID() string { return p.ID }

// Payment платеж арендатора
type Payment struct {
	Envelope  `json:"-"`
	ID        string          `json:"id" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,iso4217"`
	Status    string          `json:"status" validate:"required,oneof=pending paid failed refunded"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

func (p *Payment) Table() Table     { return TablePayments }
func (p *Payment) RecordID() string { return p.ID }

// SessionRecord синхронизируемая копия сессии устройства
type SessionRecord struct {
	Envelope  `json:"-"`
	ID        string    `json:"id" validate:"required,uuid"`
	UserID    string    `json:"user_id" validate:"required,uuid"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
	Revoked   bool      `json:"revoked,omitempty"`
}

func (s *SessionRecord) Table() Table     { return TableSessions }
func (s *SessionRecord) RecordID() string { return s.ID }
