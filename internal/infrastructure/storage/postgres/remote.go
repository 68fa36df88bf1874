package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/exp/slog"

	"bizsync/internal/domain/quota"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
	"bizsync/internal/domain/tenant"
)

// Remote таблицы удаленного бэкенда поверх пула pgx
type Remote struct {
	db  *Storage
	log *slog.Logger
}

func NewRemote(db *Storage, log *slog.Logger) *Remote {
	return &Remote{
		db:  db,
		log: log.With("component", "remote"),
	}
}

const remoteColumns = `id, tenant_id, data, version, deleted, updated_at, server_updated_at`

func (r *Remote) Ping(ctx context.Context) error {
	if err := r.db.Pool().Ping(ctx); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func scanRow(row pgx.Row) (*sync.RemoteRow, error) {
	var (
		out  sync.RemoteRow
		data []byte
	)
	if err := row.Scan(&out.ID, &out.TenantID, &data, &out.Version, &out.Deleted, &out.UpdatedAt, &out.ServerUpdatedAt); err != nil {
		return nil, err
	}
	out.Data = data
	out.ServerUpdatedAt = out.ServerUpdatedAt.UTC()
	return &out, nil
}

func (r *Remote) Select(ctx context.Context, table record.Table, tenantID string, after sync.Cursor, limit int) ([]sync.RemoteRow, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + remoteColumns + `
		FROM "` + string(table) + `"
		WHERE tenant_id = $1 AND (server_updated_at, id) > ($2, $3)
		ORDER BY server_updated_at, id
		LIMIT $4`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, after.At, after.ID, limit)
	if err != nil {
		r.log.Error("failed to select remote rows", "table", table, "error", err)
		return nil, wrapErr("select "+string(table), err)
	}
	defer rows.Close()

	var out []sync.RemoteRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, wrapErr("scan "+string(table), err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("select "+string(table), err)
	}
	return out, nil
}

func (r *Remote) Get(ctx context.Context, table record.Table, id string) (*sync.RemoteRow, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	row, err := scanRow(r.db.Pool().QueryRow(ctx,
		`SELECT `+remoteColumns+` FROM "`+string(table)+`" WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sync.ErrRemoteNotFound
		}
		return nil, wrapErr("get "+string(table), err)
	}
	return row, nil
}

// Upsert записывает строку при совпадении серверной версии с expectedVersion.
// Серверные версии начинаются с 1, поэтому expectedVersion 0 не перезапишет существующую строку.
// Строка другого арендатора никогда не перезаписывается.
func (r *Remote) Upsert(ctx context.Context, table record.Table, row sync.RemoteRow, expectedVersion int64) error {
	if err := table.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO "` + string(table) + `" AS t (id, tenant_id, data, version, deleted, updated_at, server_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			version = EXCLUDED.version,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at,
			server_updated_at = clock_timestamp()
		WHERE t.tenant_id = EXCLUDED.tenant_id AND t.version = $7`

	tag, err := r.db.Pool().Exec(ctx, query,
		row.ID, row.TenantID, string(row.Data), row.Version, row.Deleted, row.UpdatedAt, expectedVersion)
	if err != nil {
		r.log.Error("failed to upsert remote row", "table", table, "id", row.ID, "error", err)
		return wrapErr("upsert "+string(table), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s expected version %d", sync.ErrStaleWrite, table, row.ID, expectedVersion)
	}
	return nil
}

func (r *Remote) Count(ctx context.Context, table record.Table, tenantID string) (int, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}

	var n int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM "`+string(table)+`" WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count "+string(table), err)
	}
	return n, nil
}

// CheckQuotaUsage авторитетные счетчики квоты пользователя
func (r *Remote) CheckQuotaUsage(ctx context.Context, userID string) (*quota.RemoteUsage, error) {
	var u quota.RemoteUsage
	err := r.db.Pool().QueryRow(ctx,
		`SELECT quota_id, messages_limit, messages_used FROM check_quota_usage($1)`, userID).
		Scan(&u.QuotaID, &u.Limit, &u.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quota.ErrQuotaNotFound
		}
		return nil, wrapErr("check quota usage", err)
	}
	return &u, nil
}

// FetchProfile серверный профиль пользователя: арендатор и роль
func (r *Remote) FetchProfile(ctx context.Context, userID string) (*tenant.Profile, error) {
	var (
		p    tenant.Profile
		role string
	)
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, tenant_id, COALESCE(data->>'role', '') FROM profiles WHERE id = $1 AND NOT deleted`, userID).
		Scan(&p.UserID, &p.TenantID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrProfileNotFound
		}
		return nil, wrapErr("fetch profile", err)
	}
	p.Role = tenant.Role(role)
	return &p, nil
}

// wrapErr помечает сбои соединения как ErrRemoteUnavailable, чтобы движок повторил их позже
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %v", op, sync.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
