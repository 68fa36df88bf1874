package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// HashToken хэш токена в том виде, в котором он хранится
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession выпускает токен для пользователя; сам токен не сохраняется
func (s *Service) CreateSession(ctx context.Context, u User) (string, Session, error) {
	if err := s.validate.Struct(u); err != nil {
		return "", Session{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", Session{}, fmt.Errorf("generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	now := s.clock.Now()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TenantID:  u.TenantID,
		Role:      u.Role,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", Session{}, fmt.Errorf("save session: %w", err)
	}

	s.mu.Lock()
	s.trusted[sess.TokenHash] = sess
	s.mu.Unlock()

	s.Audit(ctx, Event{
		Type:     EventSessionCreated,
		UserID:   u.ID,
		TenantID: u.TenantID,
		Severity: SeverityLow,
		Details:  map[string]string{"session_id": sess.ID},
	})
	return token, sess, nil
}

// ValidateSession проверяет токен. Если строки еще нет в хранилище, но сессия
// выпущена этим процессом, строка пересоздается из памяти.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	hash := HashToken(token)
	now := s.clock.Now()

	sess, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}

		s.mu.RLock()
		trusted, ok := s.trusted[hash]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrInvalidSession
		}
		if trusted.Expired(now) {
			return nil, ErrSessionExpired
		}

		if err := s.sessions.Create(ctx, trusted); err != nil {
			return nil, fmt.Errorf("recreate session: %w", err)
		}
		s.Audit(ctx, Event{
			Type:     EventSessionRecreated,
			UserID:   trusted.UserID,
			TenantID: trusted.TenantID,
			Severity: SeverityMedium,
			Details:  map[string]string{"session_id": trusted.ID},
		})
		return &trusted, nil
	}

	if sess.Expired(now) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// SweepExpiredSessions инвалидирует истекшие сессии; если среди них активная, контекст снимается
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.sessions.ExpireBefore(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}

	s.mu.Lock()
	activeHash := ""
	if s.active != "" {
		activeHash = HashToken(s.active)
	}
	dropCurrent := false
	for _, sess := range expired {
		delete(s.trusted, sess.TokenHash)
		if sess.TokenHash == activeHash {
			dropCurrent = true
		}
	}
	if dropCurrent {
		s.current = nil
		s.active = ""
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.Audit(ctx, Event{
			Type:     EventSessionExpired,
			UserID:   sess.UserID,
			TenantID: sess.TenantID,
			Severity: SeverityLow,
			Details:  map[string]string{"session_id": sess.ID},
		})
	}
	if len(expired) > 0 {
		s.log.Info("Expired sessions swept", "count", len(expired), "current_cleared", dropCurrent)
	}
	return len(expired), nil
}

// Resume восстанавливает контекст по сохраненному токену устройства
func (s *Service) Resume(ctx context.Context, token string) (User, error) {
	sess, err := s.ValidateSession(ctx, token)
	if err != nil {
		return User{}, err
	}
	u := User{ID: sess.UserID, TenantID: sess.TenantID, Role: sess.Role}
	if !s.SetCurrentUser(ctx, u, Options{SessionToken: token, SkipVerification: true}) {
		return User{}, ErrInvalidSession
	}
	return u, nil
}
