package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"bizsync/internal/domain/tenant"
)

// AuditRepository журнал аудита; строки только добавляются
type AuditRepository struct {
	st *Storage
}

func NewAuditRepository(st *Storage) *AuditRepository {
	return &AuditRepository{st: st}
}

func (r *AuditRepository) Append(ctx context.Context, e tenant.Event) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}

	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (id, event_type, user_id, tenant_id, resource, action, severity, timestamp, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.UserID, e.TenantID, e.Resource, e.Action, string(e.Severity),
		toNanos(e.Timestamp), string(details))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) Recent(ctx context.Context, limit int, prefix string) ([]tenant.Event, error) {
	query := `
		SELECT id, event_type, user_id, tenant_id, resource, action, severity, timestamp, details
		FROM audit_log`
	var args []any
	if prefix != "" {
		query += ` WHERE substr(event_type, 1, ?) = ?`
		args = append(args, len(prefix), prefix)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.st.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []tenant.Event
	for rows.Next() {
		var (
			e                      tenant.Event
			typ, severity, details string
			ts                     int64
		)
		if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.TenantID, &e.Resource, &e.Action, &severity, &ts, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = tenant.EventType(typ)
		e.Severity = tenant.Severity(severity)
		e.Timestamp = fromNanos(ts)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
