package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/quota"
)

// QuotaRepository резервы квоты
type QuotaRepository struct {
	st  *Storage
	log *slog.Logger
}

func NewQuotaRepository(st *Storage, log *slog.Logger) *QuotaRepository {
	return &QuotaRepository{
		st:  st,
		log: log.With("component", "quota_repository"),
	}
}

const reservationColumns = `id, user_id, tenant_id, quota_id, amount, status, created_at, expires_at, committed_at, amount_used`

func scanReservation(row rowScanner) (*quota.Reservation, error) {
	var (
		r                    quota.Reservation
		status               string
		createdAt, expiresAt int64
		committedAt          sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.TenantID, &r.QuotaID, &r.Amount, &status,
		&createdAt, &expiresAt, &committedAt, &r.AmountUsed)
	if err != nil {
		return nil, err
	}
	r.Status = quota.Status(status)
	r.CreatedAt = fromNanos(createdAt)
	r.ExpiresAt = fromNanos(expiresAt)
	r.CommittedAt = fromNullNanos(committedAt)
	return &r, nil
}

func (r *QuotaRepository) Insert(ctx context.Context, res quota.Reservation) error {
	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO quota_reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.UserID, res.TenantID, res.QuotaID, res.Amount, string(res.Status),
		toNanos(res.CreatedAt), toNanos(res.ExpiresAt), nullNanos(res.CommittedAt), res.AmountUsed)
	if err != nil {
		r.log.Error("failed to insert reservation", "quota_id", res.QuotaID, "error", err)
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *QuotaRepository) get(ctx context.Context, query string, args ...any) (*quota.Reservation, error) {
	res, err := scanReservation(r.st.q(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quota.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *QuotaRepository) Get(ctx context.Context, id string) (*quota.Reservation, error) {
	return r.get(ctx, `SELECT `+reservationColumns+` FROM quota_reservations WHERE id = ?`, id)
}

func (r *QuotaRepository) OldestPending(ctx context.Context, quotaID string) (*quota.Reservation, error) {
	return r.get(ctx, `
		SELECT `+reservationColumns+`
		FROM quota_reservations
		WHERE quota_id = ? AND status = ?
		ORDER BY created_at, id
		LIMIT 1`, quotaID, string(quota.StatusPending))
}

func (r *QuotaRepository) PendingSum(ctx context.Context, quotaID string, now time.Time) (int64, error) {
	var sum int64
	err := r.st.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM quota_reservations
		WHERE quota_id = ? AND status = ? AND expires_at > ?`,
		quotaID, string(quota.StatusPending), toNanos(now)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum reservations: %w", err)
	}
	return sum, nil
}

func (r *QuotaRepository) Update(ctx context.Context, res quota.Reservation) error {
	result, err := r.st.q(ctx).ExecContext(ctx, `
		UPDATE quota_reservations
		SET status = ?, committed_at = ?, amount_used = ?
		WHERE id = ?`,
		string(res.Status), nullNanos(res.CommittedAt), res.AmountUsed, res.ID)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return quota.ErrReservationNotFound
	}
	return nil
}

// ExpireBefore пустой quotaID означает все квоты
func (r *QuotaRepository) ExpireBefore(ctx context.Context, quotaID string, now time.Time) (int64, error) {
	query := `UPDATE quota_reservations SET status = ? WHERE status = ? AND expires_at <= ?`
	args := []any{string(quota.StatusExpired), string(quota.StatusPending), toNanos(now)}
	if quotaID != "" {
		query += ` AND quota_id = ?`
		args = append(args, quotaID)
	}

	res, err := r.st.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	return res.RowsAffected()
}

func (r *QuotaRepository) List(ctx context.Context, quotaID string, limit int) ([]quota.Reservation, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.st.q(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM quota_reservations
		WHERE quota_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, quotaID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []quota.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *QuotaRepository) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM quota_reservations WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("purge tenant reservations: %w", err)
	}
	return res.RowsAffected()
}
