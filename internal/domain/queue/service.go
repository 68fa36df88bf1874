package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"bizsync/internal/domain/record"
	"bizsync/internal/utils/timeutil"
)

const (
	// FailedRetention сколько хранятся окончательно упавшие операции
	FailedRetention = 24 * time.Hour
	// CompletedKeep сколько последних завершенных операций оставляется для истории
	CompletedKeep = 1000
)

// Service очередь исходящих изменений поверх персистентного репозитория
type Service struct {
	repo  Repository
	tx    Transactor
	clock timeutil.Clock
	log   *slog.Logger
}

// NewService создает сервис очереди
func NewService(repo Repository, tx Transactor, clock timeutil.Clock, log *slog.Logger) *Service {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Service{
		repo:  repo,
		tx:    tx,
		clock: clock,
		log:   log.With("component", "sync_queue"),
	}
}

// Enqueue ставит изменение записи в очередь. Нулевой приоритет вычисляется по таблице и операции.
// Вызывается внутри транзакции локальной записи, чтобы изменение и операция сохранялись вместе.
func (s *Service) Enqueue(ctx context.Context, table record.Table, kind Kind, recordID string, payload json.RawMessage, priority Priority) (string, error) {
	if err := table.Validate(); err != nil {
		return "", err
	}
	if err := kind.Validate(); err != nil {
		return "", err
	}
	if recordID == "" {
		return "", fmt.Errorf("%w: empty record id", ErrInvalidPayload)
	}
	if priority == 0 {
		priority = DerivePriority(table, kind)
	}

	var head struct {
		TenantID string `json:"tenant_id"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &head); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	op := &Operation{
		ID:         uuid.NewString(),
		Table:      table,
		Kind:       kind,
		RecordID:   recordID,
		TenantID:   head.TenantID,
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: s.clock.Now(),
		Status:     StatusPending,
	}

	if err := s.repo.Insert(ctx, op); err != nil {
		return "", fmt.Errorf("failed to enqueue %s %s/%s: %w", kind, table, recordID, err)
	}

	s.log.Debug("Operation enqueued",
		"id", op.ID, "table", table, "op", kind, "record_id", recordID, "priority", priority.String())

	return op.ID, nil
}

// EnqueueEntry ставит в очередь закодированную запись
func (s *Service) EnqueueEntry(ctx context.Context, kind Kind, e record.Entry, priority Priority) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.Enqueue(ctx, e.Table, kind, e.ID, payload, priority)
}

// DequeueBatch сворачивает ожидающие операции по записи, упорядочивает по приоритету,
// затем по времени постановки, и переводит выбранные в processing одной транзакцией.
func (s *Service) DequeueBatch(ctx context.Context, max int) ([]PriorityOperation, error) {
	if max <= 0 {
		return nil, nil
	}

	var batch []PriorityOperation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		pending, err := s.repo.ListByStatus(ctx, StatusPending, 0)
		if err != nil {
			return fmt.Errorf("failed to list pending operations: %w", err)
		}

		folded := fold(pending)
		if len(folded) > max {
			folded = folded[:max]
		}

		ids := make([]string, 0, len(folded))
		for _, op := range folded {
			ids = append(ids, op.IDs()...)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := s.repo.SetStatus(ctx, ids, StatusProcessing, "", nil); err != nil {
			return fmt.Errorf("failed to mark operations processing: %w", err)
		}

		for i := range folded {
			folded[i].Status = StatusProcessing
		}
		batch = folded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(batch) > 0 {
		s.log.Debug("Batch dequeued", "size", len(batch))
	}
	return batch, nil
}

// MarkCompleted завершает операцию вместе со всеми поглощенными ею записями
func (s *Service) MarkCompleted(ctx context.Context, op PriorityOperation) error {
	now := s.clock.Now()
	if err := s.repo.SetStatus(ctx, op.IDs(), StatusCompleted, "", &now); err != nil {
		return fmt.Errorf("failed to complete operation %s: %w", op.ID, err)
	}
	return nil
}

// MarkFailed окончательно помечает операцию как неудачную; автоматически она больше не повторяется
func (s *Service) MarkFailed(ctx context.Context, op PriorityOperation, cause error) error {
	now := s.clock.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if err := s.repo.SetStatus(ctx, op.IDs(), StatusFailed, msg, &now); err != nil {
		return fmt.Errorf("failed to fail operation %s: %w", op.ID, err)
	}

	s.log.Warn("Operation failed permanently",
		"id", op.ID, "table", op.Table, "record_id", op.RecordID, "retries", op.RetryCount, "error", msg)
	return nil
}

// MarkRetry фиксирует неудачную попытку: увеличивает счетчик и время последней попытки
func (s *Service) MarkRetry(ctx context.Context, op *PriorityOperation, cause error) error {
	now := s.clock.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if err := s.repo.IncrementRetry(ctx, op.ID, msg, now); err != nil {
		return fmt.Errorf("failed to record retry for %s: %w", op.ID, err)
	}

	op.RetryCount++
	op.LastAttempt = &now
	op.Error = msg
	return nil
}

// Release возвращает невыполненную операцию в pending, например если проход прерван
func (s *Service) Release(ctx context.Context, op PriorityOperation) error {
	if err := s.repo.SetStatus(ctx, op.IDs(), StatusPending, op.Error, op.LastAttempt); err != nil {
		return fmt.Errorf("failed to release operation %s: %w", op.ID, err)
	}
	return nil
}

// PurgeOlderThan удаляет завершенные или упавшие операции старше cutoff
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time, status Status) (int64, error) {
	if !status.Terminal() {
		return 0, ErrNonTerminalPurge
	}

	n, err := s.repo.DeleteOlderThan(ctx, cutoff, status)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s operations: %w", status, err)
	}
	return n, nil
}

// Housekeep применяет политику хранения: упавшие старше суток и завершенные сверх последней тысячи
func (s *Service) Housekeep(ctx context.Context) (int64, error) {
	failed, err := s.PurgeOlderThan(ctx, s.clock.Now().Add(-FailedRetention), StatusFailed)
	if err != nil {
		return 0, err
	}

	completed, err := s.repo.DeleteCompletedBeyond(ctx, CompletedKeep)
	if err != nil {
		return failed, fmt.Errorf("failed to trim completed operations: %w", err)
	}

	if failed+completed > 0 {
		s.log.Info("Queue housekeeping done", "failed_removed", failed, "completed_removed", completed)
	}
	return failed + completed, nil
}

// RecoverInFlight возвращает в pending операции, оставшиеся в processing после падения процесса
func (s *Service) RecoverInFlight(ctx context.Context) (int64, error) {
	n, err := s.repo.ResetStatus(ctx, StatusProcessing, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight operations: %w", err)
	}
	if n > 0 {
		s.log.Warn("Recovered in-flight operations", "count", n)
	}
	return n, nil
}

// List возвращает операции с указанным статусом
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Operation, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}

// HasOpen сообщает, ждет ли запись еще отправки
func (s *Service) HasOpen(ctx context.Context, table record.Table, recordID string) (bool, error) {
	return s.repo.HasOpen(ctx, table, recordID)
}

// Stats считает операции по статусам
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count operations: %w", err)
	}

	return Stats{
		Pending:    counts[StatusPending],
		Processing: counts[StatusProcessing],
		Completed:  counts[StatusCompleted],
		Failed:     counts[StatusFailed],
	}, nil
}
