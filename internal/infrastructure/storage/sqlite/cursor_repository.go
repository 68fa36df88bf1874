package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

// CursorRepository позиции pull по арендатору и таблице
type CursorRepository struct {
	st *Storage
}

func NewCursorRepository(st *Storage) *CursorRepository {
	return &CursorRepository{st: st}
}

// GetCursor возвращает нулевой курсор, если таблица еще не забиралась
func (r *CursorRepository) GetCursor(ctx context.Context, tenantID string, table record.Table) (sync.Cursor, error) {
	var (
		at int64
		c  sync.Cursor
	)
	err := r.st.q(ctx).QueryRowContext(ctx,
		`SELECT at, last_id FROM pull_cursors WHERE tenant_id = ? AND table_name = ?`,
		tenantID, string(table)).Scan(&at, &c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return sync.Cursor{}, nil
	}
	if err != nil {
		return sync.Cursor{}, fmt.Errorf("get cursor %s: %w", table, err)
	}
	c.At = fromNanos(at)
	return c, nil
}

func (r *CursorRepository) SetCursor(ctx context.Context, tenantID string, table record.Table, c sync.Cursor) error {
	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO pull_cursors (tenant_id, table_name, at, last_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, table_name) DO UPDATE SET at = excluded.at, last_id = excluded.last_id`,
		tenantID, string(table), toNanos(c.At), c.ID)
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", table, err)
	}
	return nil
}

func (r *CursorRepository) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM pull_cursors WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("purge tenant cursors: %w", err)
	}
	return res.RowsAffected()
}
