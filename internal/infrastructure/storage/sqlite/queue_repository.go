package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
)

// QueueRepository персистентная очередь исходящих изменений
type QueueRepository struct {
	st  *Storage
	log *slog.Logger
}

func NewQueueRepository(st *Storage, log *slog.Logger) *QueueRepository {
	return &QueueRepository{
		st:  st,
		log: log.With("component", "queue_repository"),
	}
}

const queueColumns = `seq, id, table_name, kind, record_id, tenant_id, payload, priority,
	enqueued_at, retry_count, last_attempt, status, error`

func scanOperation(row rowScanner) (*queue.Operation, error) {
	var (
		op          queue.Operation
		table, kind string
		payload     string
		status      string
		enqueuedAt  int64
		lastAttempt sql.NullInt64
	)
	err := row.Scan(&op.Seq, &op.ID, &table, &kind, &op.RecordID, &op.TenantID, &payload, &op.Priority,
		&enqueuedAt, &op.RetryCount, &lastAttempt, &status, &op.Error)
	if err != nil {
		return nil, err
	}
	op.Table = record.Table(table)
	op.Kind = queue.Kind(kind)
	op.Payload = []byte(payload)
	op.Status = queue.Status(status)
	op.EnqueuedAt = fromNanos(enqueuedAt)
	op.LastAttempt = fromNullNanos(lastAttempt)
	return &op, nil
}

func (r *QueueRepository) Insert(ctx context.Context, op *queue.Operation) error {
	const query = `
		INSERT INTO sync_queue (id, table_name, kind, record_id, tenant_id, payload, priority,
			enqueued_at, retry_count, last_attempt, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.st.q(ctx).ExecContext(ctx, query,
		op.ID, string(op.Table), string(op.Kind), op.RecordID, op.TenantID, string(op.Payload), op.Priority,
		toNanos(op.EnqueuedAt), op.RetryCount, nullNanos(op.LastAttempt), string(op.Status), op.Error)
	if err != nil {
		r.log.Error("failed to insert operation", "id", op.ID, "error", err)
		return fmt.Errorf("insert operation: %w", err)
	}

	if seq, err := res.LastInsertId(); err == nil {
		op.Seq = seq
	}
	return nil
}

func (r *QueueRepository) Get(ctx context.Context, id string) (*queue.Operation, error) {
	op, err := scanOperation(r.st.q(ctx).QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrOperationNotFound
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

func (r *QueueRepository) ListByStatus(ctx context.Context, status queue.Status, limit int) ([]queue.Operation, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE status = ? ORDER BY seq`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.st.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []queue.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

// SetStatus меняет статус группы операций; nil attemptAt оставляет прежнее время попытки
func (r *QueueRepository) SetStatus(ctx context.Context, ids []string, status queue.Status, errMsg string, attemptAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	in, idArgs := placeholders(ids)
	query := `
		UPDATE sync_queue
		SET status = ?, error = ?, last_attempt = COALESCE(?, last_attempt)
		WHERE id IN (` + in + `)`
	args := append([]any{string(status), errMsg, nullNanos(attemptAt)}, idArgs...)

	res, err := r.st.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to set operation status", "status", status, "error", err)
		return fmt.Errorf("set operation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("%w: updated %d of %d", queue.ErrOperationNotFound, n, len(ids))
	}
	return nil
}

func (r *QueueRepository) IncrementRetry(ctx context.Context, id string, errMsg string, attemptAt time.Time) error {
	res, err := r.st.q(ctx).ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1, error = ?, last_attempt = ? WHERE id = ?`,
		errMsg, toNanos(attemptAt), id)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queue.ErrOperationNotFound
	}
	return nil
}

func (r *QueueRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, status queue.Status) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = ? AND COALESCE(last_attempt, enqueued_at) < ?`,
		string(status), toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old operations: %w", err)
	}
	return res.RowsAffected()
}

func (r *QueueRepository) DeleteCompletedBeyond(ctx context.Context, keep int) (int64, error) {
	const query = `
		DELETE FROM sync_queue
		WHERE status = 'completed'
		  AND seq NOT IN (
			SELECT seq FROM sync_queue WHERE status = 'completed' ORDER BY seq DESC LIMIT ?
		  )`

	res, err := r.st.q(ctx).ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("trim completed operations: %w", err)
	}
	return res.RowsAffected()
}

func (r *QueueRepository) ResetStatus(ctx context.Context, from, to queue.Status) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE status = ?`, string(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("reset operation status: %w", err)
	}
	return res.RowsAffected()
}

func (r *QueueRepository) CountByStatus(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := r.st.q(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}
	defer rows.Close()

	counts := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan operation count: %w", err)
		}
		counts[queue.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *QueueRepository) HasOpen(ctx context.Context, table record.Table, recordID string) (bool, error) {
	var open bool
	err := r.st.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sync_queue
			WHERE table_name = ? AND record_id = ? AND status IN ('pending', 'processing')
		)`, string(table), recordID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open operations: %w", err)
	}
	return open, nil
}

func (r *QueueRepository) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM sync_queue WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("purge tenant operations: %w", err)
	}
	return res.RowsAffected()
}
