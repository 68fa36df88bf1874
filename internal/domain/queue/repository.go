package queue

import (
	"context"
	"time"

	"bizsync/internal/domain/record"
)

// Repository персистентное хранилище очереди
type Repository interface {
	Insert(ctx context.Context, op *Operation) error
	Get(ctx context.Context, id string) (*Operation, error)
	// ListByStatus возвращает операции в порядке постановки (seq)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Operation, error)
	SetStatus(ctx context.Context, ids []string, status Status, errMsg string, attemptAt *time.Time) error
	IncrementRetry(ctx context.Context, id string, errMsg string, attemptAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, status Status) (int64, error)
	DeleteCompletedBeyond(ctx context.Context, keep int) (int64, error)
	ResetStatus(ctx context.Context, from, to Status) (int64, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	HasOpen(ctx context.Context, table record.Table, recordID string) (bool, error)
	DeleteTenant(ctx context.Context, tenantID string) (int64, error)
}

// Transactor выполняет fn в одной транзакции хранилища; транзакция передается через ctx
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
