package queue

import (
	"time"

	"bizsync/internal/domain/queue"
)

type listInput struct {
	Status string `query:"status" enum:"pending,processing,completed,failed" default:"pending"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100"`
}

type listOutput struct {
	Body ListResponse
}

type ListResponse struct {
	Operations []Operation `json:"operations"`
	Stats      queue.Stats `json:"stats"`
}

// Operation операция очереди без полезной нагрузки
type Operation struct {
	ID          string     `json:"id"`
	Table       string     `json:"table"`
	Kind        string     `json:"operation"`
	RecordID    string     `json:"record_id"`
	Priority    string     `json:"priority"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	RetryCount  int        `json:"retry_count"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

type purgeInput struct {
	Status    string `query:"status" enum:"completed,failed" default:"failed"`
	OlderThan string `query:"older_than" default:"24h" doc:"Go duration, e.g. 24h"`
}

type purgeOutput struct {
	Body PurgeResponse
}

type PurgeResponse struct {
	Removed int64 `json:"removed"`
}
