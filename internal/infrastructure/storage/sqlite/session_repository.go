package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/tenant"
)

// SessionRepository сессии устройства в таблице auth_sessions
type SessionRepository struct {
	st  *Storage
	log *slog.Logger
}

func NewSessionRepository(st *Storage, log *slog.Logger) *SessionRepository {
	return &SessionRepository{
		st:  st,
		log: log.With("component", "session_repository"),
	}
}

const sessionColumns = `id, user_id, tenant_id, role, token_hash, created_at, expires_at, invalidated`

func scanSession(row rowScanner) (*tenant.Session, error) {
	var (
		s                    tenant.Session
		role                 string
		createdAt, expiresAt int64
		invalidated          int
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &role, &s.TokenHash, &createdAt, &expiresAt, &invalidated); err != nil {
		return nil, err
	}
	s.Role = tenant.Role(role)
	s.CreatedAt = fromNanos(createdAt)
	s.ExpiresAt = fromNanos(expiresAt)
	s.Invalidated = invalidated == 1
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s tenant.Session) error {
	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO auth_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			invalidated = excluded.invalidated`,
		s.ID, s.UserID, s.TenantID, string(s.Role), s.TokenHash,
		toNanos(s.CreatedAt), toNanos(s.ExpiresAt), boolInt(s.Invalidated))
	if err != nil {
		r.log.Error("failed to create session", "user_id", s.UserID, "error", err)
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*tenant.Session, error) {
	s, err := scanSession(r.st.q(ctx).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE token_hash = ?`, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Invalidate(ctx context.Context, id string) error {
	res, err := r.st.q(ctx).ExecContext(ctx, `UPDATE auth_sessions SET invalidated = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ExpireBefore(ctx context.Context, now time.Time) ([]tenant.Session, error) {
	var expired []tenant.Session
	err := r.st.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := r.st.q(ctx).QueryContext(ctx,
			`SELECT `+sessionColumns+` FROM auth_sessions WHERE invalidated = 0 AND expires_at <= ?`,
			toNanos(now))
		if err != nil {
			return fmt.Errorf("list expired sessions: %w", err)
		}
		for rows.Next() {
			s, err := scanSession(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan session: %w", err)
			}
			s.Invalidated = true
			expired = append(expired, *s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = r.st.q(ctx).ExecContext(ctx,
			`UPDATE auth_sessions SET invalidated = 1 WHERE invalidated = 0 AND expires_at <= ?`, toNanos(now))
		if err != nil {
			return fmt.Errorf("expire sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *SessionRepository) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM auth_sessions WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("purge tenant sessions: %w", err)
	}
	return res.RowsAffected()
}
