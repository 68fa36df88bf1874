package quota

import "time"

// Status состояние резерва
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Reservation локальный резерв части лимита сообщений
type Reservation struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TenantID    string     `json:"tenant_id"`
	QuotaID     string     `json:"quota_id"`
	Amount      int64      `json:"amount"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
	AmountUsed  int64      `json:"amount_used,omitempty"`
}

// ReserveResult итог попытки резервирования
type ReserveResult struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservation_id,omitempty"`
	// Remaining оценка остатка после резерва
	Remaining int64 `json:"remaining"`
	// Available доступный объем на момент попытки
	Available int64 `json:"available"`
}

// Usage счетчики лимита с учетом активных резервов
type Usage struct {
	QuotaID   string `json:"quota_id"`
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

// RemoteUsage авторитетные счетчики сервера
type RemoteUsage struct {
	QuotaID string
	Limit   int64
	Used    int64
}
