package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/record"
)

// RecordRepository записи сущностей, по таблице SQLite на каждую
type RecordRepository struct {
	st  *Storage
	log *slog.Logger
}

func NewRecordRepository(st *Storage, log *slog.Logger) *RecordRepository {
	return &RecordRepository{
		st:  st,
		log: log.With("component", "record_repository"),
	}
}

const entryColumns = `id, tenant_id, data, version, base_version, sync_status, last_modified, deleted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(table record.Table, row rowScanner) (*record.Entry, error) {
	var (
		e            record.Entry
		data         string
		status       string
		lastModified int64
		deleted      int
	)
	if err := row.Scan(&e.ID, &e.TenantID, &data, &e.Version, &e.BaseVersion, &status, &lastModified, &deleted); err != nil {
		return nil, err
	}
	e.Table = table
	e.Data = []byte(data)
	e.SyncStatus = record.SyncStatus(status)
	e.LastModified = fromNanos(lastModified)
	e.Deleted = deleted == 1
	return &e, nil
}

func (r *RecordRepository) Get(ctx context.Context, table record.Table, id string) (*record.Entry, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + entryColumns + ` FROM "` + string(table) + `" WHERE id = ?`
	e, err := scanEntry(table, r.st.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return e, nil
}

func (r *RecordRepository) Put(ctx context.Context, e *record.Entry) error {
	if err := e.Table.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO "` + string(e.Table) + `" (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			data = excluded.data,
			version = excluded.version,
			base_version = excluded.base_version,
			sync_status = excluded.sync_status,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted`

	_, err := r.st.q(ctx).ExecContext(ctx, query,
		e.ID, e.TenantID, string(e.Data), e.Version, e.BaseVersion,
		string(e.SyncStatus), toNanos(e.LastModified), boolInt(e.Deleted))
	if err != nil {
		r.log.Error("failed to put record", "table", e.Table, "id", e.ID, "error", err)
		return fmt.Errorf("put %s/%s: %w", e.Table, e.ID, err)
	}
	return nil
}

func (r *RecordRepository) List(ctx context.Context, table record.Table, filter record.ListFilter) ([]record.Entry, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		where = append(where, "sync_status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted = 0")
	}

	query := `SELECT ` + entryColumns + ` FROM "` + string(table) + `"`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_modified DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.st.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to list records", "table", table, "error", err)
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []record.Entry
	for rows.Next() {
		e, err := scanEntry(table, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Count считает все строки арендатора, включая удаленные
func (r *RecordRepository) Count(ctx context.Context, table record.Table, tenantID string) (int, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}

	var n int
	query := `SELECT COUNT(*) FROM "` + string(table) + `" WHERE tenant_id = ?`
	if err := r.st.q(ctx).QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *RecordRepository) Acknowledge(ctx context.Context, table record.Table, id string, version int64) (bool, error) {
	if err := table.Validate(); err != nil {
		return false, err
	}

	var synced bool
	err := r.st.RunInTx(ctx, func(ctx context.Context) error {
		var current int64
		err := r.st.q(ctx).QueryRowContext(ctx,
			`SELECT version FROM "`+string(table)+`" WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return record.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read version %s/%s: %w", table, id, err)
		}

		synced = current == version
		query := `UPDATE "` + string(table) + `" SET base_version = ? WHERE id = ?`
		args := []any{version, id}
		if synced {
			query = `UPDATE "` + string(table) + `" SET base_version = ?, sync_status = ? WHERE id = ?`
			args = []any{version, string(record.StatusSynced), id}
		}
		if _, err := r.st.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("acknowledge %s/%s: %w", table, id, err)
		}
		return nil
	})
	return synced, err
}

func (r *RecordRepository) SetStatus(ctx context.Context, table record.Table, id string, status record.SyncStatus) error {
	if err := table.Validate(); err != nil {
		return err
	}

	res, err := r.st.q(ctx).ExecContext(ctx,
		`UPDATE "`+string(table)+`" SET sync_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set status %s/%s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return record.ErrNotFound
	}
	return nil
}

// FindQuota последняя неудаленная запись квоты пользователя
func (r *RecordRepository) FindQuota(ctx context.Context, tenantID, userID string) (*record.Entry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM quotas
		WHERE tenant_id = ? AND deleted = 0 AND json_extract(data, '$.user_id') = ?
		ORDER BY last_modified DESC
		LIMIT 1`

	e, err := scanEntry(record.TableQuotas, r.st.q(ctx).QueryRowContext(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("find quota: %w", err)
	}
	return e, nil
}

func (r *RecordRepository) PurgeTenant(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := r.st.RunInTx(ctx, func(ctx context.Context) error {
		for _, table := range record.AllTables() {
			res, err := r.st.q(ctx).ExecContext(ctx,
				`DELETE FROM "`+string(table)+`" WHERE tenant_id = ?`, tenantID)
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
