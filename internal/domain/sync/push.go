package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/utils/timeutil"
)

// tally потокобезопасно накапливает итоги прохода
type tally struct {
	mu  stdsync.Mutex
	res *Result
}

func (t *tally) add(fn func(r *Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.res)
}

// push отправляет очередь пакетами. Ошибка возвращается, только если проход нужно прервать.
func (m *Manager) push(ctx context.Context, res *Result) error {
	t := &tally{res: res}
	done := 0

	for {
		batch, err := m.queue.DequeueBatch(ctx, m.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to dequeue batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		abort := m.pushBatch(ctx, batch, t)
		done += len(batch)
		m.bus.Publish(Event{
			Type:     EventProgressUpdate,
			At:       m.clock.Now(),
			Progress: &Progress{Phase: PhasePush, Done: done},
		})

		if abort != nil {
			return abort
		}
	}
}

// pushBatch обрабатывает операции пакета независимо друг от друга
func (m *Manager) pushBatch(ctx context.Context, batch []queue.PriorityOperation, t *tally) error {
	var (
		abortMu stdsync.Mutex
		abort   error
	)

	var g errgroup.Group
	g.SetLimit(m.cfg.PushConcurrency)

	for i := range batch {
		op := batch[i]
		g.Go(func() error {
			err := m.pushOne(ctx, &op, t)
			if err == nil {
				if cerr := m.queue.MarkCompleted(ctx, op); cerr != nil {
					m.log.Error("Failed to complete operation", "id", op.ID, "error", cerr)
				}
				t.add(func(r *Result) { r.Pushed++ })
				return nil
			}

			if errors.Is(err, ErrManualConflict) {
				// запись ждет решения пользователя, ResolveConflict поставит новую операцию
				if cerr := m.queue.MarkCompleted(ctx, op); cerr != nil {
					m.log.Error("Failed to complete operation", "id", op.ID, "error", cerr)
				}
				t.add(func(r *Result) { r.Unresolved++ })
				return nil
			}

			if IsRecoverable(err) && !m.conn.Check(ctx).IsOnline {
				// связь пропала: операция вернется в очередь и уйдет на следующем проходе
				if rerr := m.queue.Release(ctx, op); rerr != nil {
					m.log.Error("Failed to release operation", "id", op.ID, "error", rerr)
				}
				abortMu.Lock()
				if abort == nil {
					abort = err
				}
				abortMu.Unlock()
				return nil
			}

			m.failOperation(ctx, op, err, t)
			return nil
		})
	}
	_ = g.Wait()

	return abort
}

func (m *Manager) failOperation(ctx context.Context, op queue.PriorityOperation, cause error, t *tally) {
	if err := m.queue.MarkFailed(ctx, op, cause); err != nil {
		m.log.Error("Failed to mark operation failed", "id", op.ID, "error", err)
	}

	if err := m.records.SetStatus(ctx, op.Table, op.RecordID, record.StatusError); err != nil && !errors.Is(err, record.ErrNotFound) {
		m.log.Error("Failed to flag record", "table", op.Table, "record_id", op.RecordID, "error", err)
	}

	t.add(func(r *Result) {
		r.Failed++
		r.Errors = append(r.Errors, OpError{
			Table:     op.Table,
			RecordID:  op.RecordID,
			Operation: string(op.Kind),
			Error:     cause.Error(),
			Retry:     op.RetryCount,
		})
	})
}

// pushOne доставляет одну операцию, повторяя попытки с экспоненциальной задержкой
func (m *Manager) pushOne(ctx context.Context, op *queue.PriorityOperation, t *tally) error {
	entry, err := m.outgoing(ctx, *op)
	if err != nil {
		return err
	}

	if !m.tenant.EnforceDataIsolation(ctx, entry.TenantID) {
		return fmt.Errorf("%w: %s/%s belongs to another tenant", ErrAccessDenied, entry.Table, entry.ID)
	}

	for attempt := 0; ; attempt++ {
		err = m.pushAttempt(ctx, entry, t)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt+1 >= m.cfg.MaxRetries {
			return err
		}

		if rerr := m.queue.MarkRetry(ctx, op, err); rerr != nil {
			m.log.Error("Failed to record retry", "id", op.ID, "error", rerr)
		}
		m.log.Debug("Retrying operation", "id", op.ID, "attempt", attempt+1, "error", err)

		if serr := sleepCtx(ctx, m.cfg.Backoff.Delay(attempt)); serr != nil {
			return serr
		}

		if errors.Is(err, ErrStaleWrite) {
			if fresh, ferr := m.outgoing(ctx, *op); ferr == nil {
				entry = fresh
			}
		}
	}
}

// outgoing берет актуальное состояние записи из локального хранилища,
// а полезную нагрузку очереди только если записи там уже нет.
// Удаление в свертке побеждает правки, сделанные после него.
func (m *Manager) outgoing(ctx context.Context, op queue.PriorityOperation) (record.Entry, error) {
	local, err := m.records.Get(ctx, op.Table, op.RecordID)
	if err == nil {
		if op.Kind == queue.KindDelete && !local.Deleted {
			local.Deleted = true
			if err := m.records.Put(ctx, local); err != nil {
				return record.Entry{}, fmt.Errorf("failed to keep %s/%s deleted: %w", op.Table, op.RecordID, err)
			}
		}
		return *local, nil
	}
	if !errors.Is(err, record.ErrNotFound) {
		return record.Entry{}, fmt.Errorf("failed to read local record: %w", err)
	}
	return op.Entry()
}

// pushAttempt одна попытка отправки с проверкой конфликта по базовой версии
func (m *Manager) pushAttempt(ctx context.Context, entry record.Entry, t *tally) error {
	remote, err := m.remote.Get(ctx, entry.Table, entry.ID)
	if err != nil && !errors.Is(err, ErrRemoteNotFound) {
		return err
	}

	out := entry
	var (
		expected int64
		resolved bool
	)

	if remote != nil {
		if !m.tenant.EnforceDataIsolation(ctx, remote.TenantID) {
			return fmt.Errorf("%w: remote %s/%s belongs to another tenant", ErrAccessDenied, entry.Table, entry.ID)
		}
		expected = remote.Version

		if remote.Version != entry.BaseVersion {
			res := m.resolve(entry, *remote)
			t.add(func(r *Result) { r.Conflicts++ })
			m.reportConflict(ctx, entry.Table, entry.ID, res)

			if res.Manual {
				if err := m.records.SetStatus(ctx, entry.Table, entry.ID, record.StatusConflict); err != nil {
					m.log.Error("Failed to flag conflict", "table", entry.Table, "record_id", entry.ID, "error", err)
				}
				return fmt.Errorf("%w: %s/%s", ErrManualConflict, entry.Table, entry.ID)
			}

			out = resolvedEntry(entry, *remote, res)
			resolved = true
		}
	}

	row := RemoteRow{
		ID:        out.ID,
		TenantID:  out.TenantID,
		Data:      out.Data,
		Version:   out.Version,
		Deleted:   out.Deleted,
		UpdatedAt: timeutil.Format(out.LastModified),
	}
	if err := m.remote.Upsert(ctx, entry.Table, row, expected); err != nil {
		return err
	}

	if resolved {
		t.add(func(r *Result) { r.Resolved++ })
		return m.applyPushedResolution(ctx, entry, out)
	}

	if _, err := m.records.Acknowledge(ctx, entry.Table, entry.ID, entry.Version); err != nil && !errors.Is(err, record.ErrNotFound) {
		return fmt.Errorf("failed to acknowledge %s/%s: %w", entry.Table, entry.ID, err)
	}
	return nil
}

// applyPushedResolution сохраняет локально итог конфликта, который уже принят сервером
func (m *Manager) applyPushedResolution(ctx context.Context, sent, out record.Entry) error {
	return m.tx.RunInTx(ctx, func(ctx context.Context) error {
		local, err := m.records.Get(ctx, sent.Table, sent.ID)
		if err != nil && !errors.Is(err, record.ErrNotFound) {
			return err
		}

		if local == nil || local.Version == sent.Version {
			out.SyncStatus = record.StatusSynced
			out.BaseVersion = out.Version
			return m.records.Put(ctx, &out)
		}

		// запись изменили во время отправки, новая правка уже стоит в очереди
		local.BaseVersion = out.Version
		if local.Version <= out.Version {
			local.Version = out.Version + 1
		}
		return m.records.Put(ctx, local)
	})
}

func (m *Manager) resolve(local record.Entry, remote RemoteRow) conflict.Resolution {
	return conflict.Resolve(conflict.Input{
		Table:    local.Table,
		RecordID: local.ID,
		Local: conflict.Side{
			Data:      local.Data,
			Timestamp: timeutil.Format(local.LastModified),
			Version:   local.Version,
			Deleted:   local.Deleted,
		},
		Remote: conflict.Side{
			Data:      remote.Data,
			Timestamp: remote.UpdatedAt,
			Version:   remote.Version,
			Deleted:   remote.Deleted,
		},
		Strategy: m.cfg.Strategy,
	})
}

// resolvedEntry строит запись из итога разрешения. Метка времени берется у победившей стороны.
func resolvedEntry(local record.Entry, remote RemoteRow, res conflict.Resolution) record.Entry {
	out := local
	out.Data = res.Data
	out.Deleted = res.Deleted
	out.Version = res.Version

	if res.Winner == conflict.WinnerRemote {
		if ts, err := timeutil.Normalize(remote.UpdatedAt); err == nil {
			out.LastModified = ts
		} else if !remote.ServerUpdatedAt.IsZero() {
			out.LastModified = remote.ServerUpdatedAt.UTC()
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
