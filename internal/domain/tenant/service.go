package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdsync "sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"bizsync/internal/utils/timeutil"
)

const (
	// ProfileTimeout ограничивает проверку профиля на сервере
	ProfileTimeout = 3 * time.Second
	// DefaultSessionTTL время жизни сессии устройства
	DefaultSessionTTL = 24 * time.Hour
)

// Options параметры SetCurrentUser
type Options struct {
	SessionToken string
	// SkipVerification отключает сверку с серверным профилем, когда он уже проверен
	SkipVerification bool
}

// Deps зависимости сервиса контекста арендатора
type Deps struct {
	Sessions SessionRepository
	Audit    AuditRepository
	Profiles ProfileFetcher
	Purgers  []Purger
	Clock    timeutil.Clock
	Log      *slog.Logger
}

// Service единственный источник знания об активном пользователе и его арендаторе
type Service struct {
	sessions SessionRepository
	audit    AuditRepository
	profiles ProfileFetcher
	purgers  []Purger
	clock    timeutil.Clock
	log      *slog.Logger
	validate *validator.Validate

	sessionTTL time.Duration

	mu      stdsync.RWMutex
	current *User
	// trusted сессии, созданные в этом процессе, по хэшу токена
	trusted map[string]Session
	active  string
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	return &Service{
		sessions:   deps.Sessions,
		audit:      deps.Audit,
		profiles:   deps.Profiles,
		purgers:    deps.Purgers,
		clock:      deps.Clock,
		log:        deps.Log.With("component", "tenant"),
		validate:   validator.New(),
		sessionTTL: DefaultSessionTTL,
		trusted:    make(map[string]Session),
	}
}

// WithSessionTTL переопределяет время жизни новых сессий
func (s *Service) WithSessionTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// SetCurrentUser проверяет пользователя и только после этого делает его активным.
// Ошибки проверки не возвращаются: вызывающий получает false и решает, как деградировать.
func (s *Service) SetCurrentUser(ctx context.Context, u User, opts Options) bool {
	if err := s.validate.Struct(u); err != nil {
		s.Audit(ctx, Event{
			Type:     EventSecurityBreach,
			UserID:   u.ID,
			TenantID: u.TenantID,
			Severity: SeverityHigh,
			Details:  map[string]string{"reason": "invalid identity", "error": err.Error()},
		})
		return false
	}

	if !opts.SkipVerification && s.profiles != nil {
		if ok := s.verifyProfile(ctx, u); !ok {
			return false
		}
	}

	if opts.SessionToken != "" {
		if _, err := s.ValidateSession(ctx, opts.SessionToken); err != nil {
			s.Audit(ctx, Event{
				Type:     EventSecurityBreach,
				UserID:   u.ID,
				TenantID: u.TenantID,
				Severity: SeverityHigh,
				Details:  map[string]string{"reason": "invalid session", "error": err.Error()},
			})
			return false
		}
	}

	s.mu.Lock()
	cu := u
	s.current = &cu
	s.active = opts.SessionToken
	s.mu.Unlock()

	s.Audit(ctx, Event{
		Type:     EventLogin,
		UserID:   u.ID,
		TenantID: u.TenantID,
		Severity: SeverityLow,
		Details:  map[string]string{"role": string(u.Role)},
	})
	return true
}

func (s *Service) verifyProfile(ctx context.Context, u User) bool {
	pctx, cancel := context.WithTimeout(ctx, ProfileTimeout)
	defer cancel()

	p, err := s.profiles.FetchProfile(pctx, u.ID)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
			s.log.Warn("Profile verification unavailable, proceeding", "user_id", u.ID, "error", err)
			return true
		}
		s.Audit(ctx, Event{
			Type:     EventSecurityBreach,
			UserID:   u.ID,
			TenantID: u.TenantID,
			Severity: SeverityHigh,
			Details:  map[string]string{"reason": "profile lookup failed", "error": err.Error()},
		})
		return false
	}

	if p.TenantID != u.TenantID || p.Role != u.Role {
		s.Audit(ctx, Event{
			Type:     EventSecurityBreach,
			UserID:   u.ID,
			TenantID: u.TenantID,
			Severity: SeverityCritical,
			Details: map[string]string{
				"reason":          "privilege escalation",
				"claimed_tenant":  u.TenantID,
				"verified_tenant": p.TenantID,
				"claimed_role":    string(u.Role),
				"verified_role":   string(p.Role),
			},
		})
		return false
	}
	return true
}

// CurrentUser возвращает активного пользователя
func (s *Service) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return User{}, false
	}
	return *s.current, true
}

// TenantID арендатор активного пользователя или пустая строка
func (s *Service) TenantID() string {
	u, ok := s.CurrentUser()
	if !ok {
		return ""
	}
	return u.TenantID
}

// ClearCurrentUser снимает контекст и инвалидирует активную сессию
func (s *Service) ClearCurrentUser(ctx context.Context) {
	s.mu.Lock()
	u := s.current
	token := s.active
	s.current = nil
	s.active = ""
	s.mu.Unlock()

	if u == nil {
		return
	}

	if token != "" && s.sessions != nil {
		hash := HashToken(token)
		if sess, err := s.sessions.GetByTokenHash(ctx, hash); err == nil {
			if err := s.sessions.Invalidate(ctx, sess.ID); err != nil {
				s.log.Warn("Failed to invalidate session", "session_id", sess.ID, "error", err)
			}
		}
		s.mu.Lock()
		delete(s.trusted, hash)
		s.mu.Unlock()
	}

	s.Audit(ctx, Event{
		Type:     EventLogout,
		UserID:   u.ID,
		TenantID: u.TenantID,
		Severity: SeverityLow,
	})
}

// EnforceDataIsolation истинно только при активном контексте того же арендатора
func (s *Service) EnforceDataIsolation(ctx context.Context, resourceTenantID string) bool {
	u, ok := s.CurrentUser()
	if ok && resourceTenantID != "" && u.TenantID == resourceTenantID {
		return true
	}

	ev := Event{
		Type:     EventDataAccessViolation,
		Severity: SeverityHigh,
		Details:  map[string]string{"resource_tenant_id": resourceTenantID},
	}
	if ok {
		ev.UserID = u.ID
		ev.TenantID = u.TenantID
	} else {
		ev.Details["reason"] = "no tenant context"
	}
	s.Audit(ctx, ev)
	return false
}

// CheckPermission ролевая проверка действия над ресурсом
func (s *Service) CheckPermission(ctx context.Context, action Action, resource string) bool {
	u, ok := s.CurrentUser()
	if ok && allowed(u.Role, action, resource) {
		return true
	}

	ev := Event{
		Type:     EventPermissionDenied,
		Resource: resource,
		Action:   string(action),
		Severity: SeverityMedium,
	}
	if ok {
		ev.UserID = u.ID
		ev.TenantID = u.TenantID
		ev.Details = map[string]string{"role": string(u.Role)}
	}
	s.Audit(ctx, ev)
	return false
}

// CanPerformAction сначала проверяет права, затем изоляцию, если арендатор ресурса задан
func (s *Service) CanPerformAction(ctx context.Context, action Action, resource, resourceTenantID string) bool {
	if !s.CheckPermission(ctx, action, resource) {
		return false
	}
	if resourceTenantID == "" {
		return true
	}
	return s.EnforceDataIsolation(ctx, resourceTenantID)
}

// Authorize то же, что CanPerformAction, но с ошибкой для сервисного слоя
func (s *Service) Authorize(ctx context.Context, action Action, resource, resourceTenantID string) error {
	if _, ok := s.CurrentUser(); !ok {
		return ErrNoUser
	}
	if !s.CanPerformAction(ctx, action, resource, resourceTenantID) {
		return fmt.Errorf("%w: %s %s", ErrAccessDenied, action, resource)
	}
	return nil
}

// Audit добавляет событие в журнал; сбой записи журнала только логируется
func (s *Service) Audit(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityLow
	}

	switch e.Severity {
	case SeverityHigh, SeverityCritical:
		s.log.Warn("Security event", "type", e.Type, "severity", e.Severity, "user_id", e.UserID, "tenant_id", e.TenantID, "details", e.Details)
	default:
		s.log.Debug("Audit event", "type", e.Type, "user_id", e.UserID, "tenant_id", e.TenantID)
	}

	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Error("Failed to append audit event", "type", e.Type, "error", err)
	}
}

// RecentEvents последние события журнала, отфильтрованные по префиксу типа
func (s *Service) RecentEvents(ctx context.Context, limit int, prefix string) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.Recent(ctx, limit, prefix)
}

// Purge жестко удаляет данные арендатора; доступно только владельцу этого арендатора
func (s *Service) Purge(ctx context.Context, tenantID string) (int64, error) {
	if err := s.Authorize(ctx, ActionPurge, "tenant", tenantID); err != nil {
		return 0, err
	}

	var total int64
	for _, p := range s.purgers {
		n, err := p.PurgeTenant(ctx, tenantID)
		if err != nil {
			return total, fmt.Errorf("purge tenant: %w", err)
		}
		total += n
	}
	if s.sessions != nil {
		n, err := s.sessions.DeleteTenant(ctx, tenantID)
		if err != nil {
			return total, fmt.Errorf("purge sessions: %w", err)
		}
		total += n
	}

	u, _ := s.CurrentUser()
	s.Audit(ctx, Event{
		Type:     EventTenantPurged,
		UserID:   u.ID,
		TenantID: tenantID,
		Action:   string(ActionPurge),
		Severity: SeverityHigh,
		Details:  map[string]string{"rows": fmt.Sprint(total)},
	})
	return total, nil
}
