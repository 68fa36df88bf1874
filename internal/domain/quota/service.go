package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/utils/timeutil"
)

// DefaultReservationTTL срок жизни резерва, после которого он перестает учитываться
const DefaultReservationTTL = 10 * time.Minute

// Deps зависимости сервиса квот
type Deps struct {
	Reservations Repository
	Records      Records
	Queue        Queue
	Remote       Remote
	Tenant       Authorizer
	Tx           Transactor
	Clock        timeutil.Clock
	Log          *slog.Logger
}

// Service двухфазное резервирование лимита сообщений, работающее без сети
type Service struct {
	repo    Repository
	records Records
	queue   Queue
	remote  Remote
	tenant  Authorizer
	tx      Transactor
	clock   timeutil.Clock
	log     *slog.Logger
	ttl     time.Duration
}

func NewService(deps Deps, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	return &Service{
		repo:    deps.Reservations,
		records: deps.Records,
		queue:   deps.Queue,
		remote:  deps.Remote,
		tenant:  deps.Tenant,
		tx:      deps.Tx,
		clock:   deps.Clock,
		log:     deps.Log.With("component", "quota"),
		ttl:     ttl,
	}
}

// Reserve резервирует amount сообщений пользователя. При нехватке возвращает
// результат с Success=false и *ShortfallError.
func (s *Service) Reserve(ctx context.Context, userID string, amount int64) (ReserveResult, error) {
	if amount <= 0 {
		return ReserveResult{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	tenantID, err := s.authorize(ctx, tenant.ActionReserve)
	if err != nil {
		return ReserveResult{}, err
	}

	var res ReserveResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		q, _, err := s.loadQuota(ctx, tenantID, userID)
		if err != nil {
			return err
		}

		usage, err := s.usage(ctx, q, now)
		if err != nil {
			return err
		}
		res.Available = usage.Available

		if usage.Available < amount {
			res.Remaining = usage.Available
			return &ShortfallError{Requested: amount, Available: usage.Available}
		}

		rsv := Reservation{
			ID:        uuid.NewString(),
			UserID:    userID,
			TenantID:  tenantID,
			QuotaID:   q.ID,
			Amount:    amount,
			Status:    StatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := s.repo.Insert(ctx, rsv); err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		res.Success = true
		res.ReservationID = rsv.ID
		res.Remaining = usage.Available - amount
		return nil
	})
	if err != nil {
		var short *ShortfallError
		if errors.As(err, &short) {
			s.log.Info("Quota reservation refused", "user_id", userID, "requested", amount, "available", short.Available)
		}
		return res, err
	}

	s.log.Debug("Quota reserved", "user_id", userID, "reservation_id", res.ReservationID, "amount", amount, "remaining", res.Remaining)
	return res, nil
}

// Commit фиксирует расход по старейшему ожидающему резерву квоты
func (s *Service) Commit(ctx context.Context, quotaID string, amountUsed int64) (*Reservation, error) {
	return s.commit(ctx, amountUsed, func(ctx context.Context) (*Reservation, error) {
		rsv, err := s.repo.OldestPending(ctx, quotaID)
		if err != nil {
			return nil, fmt.Errorf("quota %s: %w", quotaID, err)
		}
		return rsv, nil
	})
}

// CommitReservation фиксирует расход по конкретному резерву
func (s *Service) CommitReservation(ctx context.Context, reservationID string, amountUsed int64) (*Reservation, error) {
	return s.commit(ctx, amountUsed, func(ctx context.Context) (*Reservation, error) {
		return s.repo.Get(ctx, reservationID)
	})
}

func (s *Service) commit(ctx context.Context, amountUsed int64, find func(ctx context.Context) (*Reservation, error)) (*Reservation, error) {
	if amountUsed < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amountUsed)
	}
	tenantID, err := s.authorize(ctx, tenant.ActionReserve)
	if err != nil {
		return nil, err
	}

	var (
		committed *Reservation
		expired   bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		rsv, err := find(ctx)
		if err != nil {
			return err
		}
		if rsv.TenantID != tenantID {
			return fmt.Errorf("%w: reservation %s", tenant.ErrAccessDenied, rsv.ID)
		}
		if rsv.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, rsv.ID, rsv.Status)
		}

		// истекший резерв помечается и фиксируется без списания
		if !now.Before(rsv.ExpiresAt) {
			rsv.Status = StatusExpired
			if err := s.repo.Update(ctx, *rsv); err != nil {
				return fmt.Errorf("failed to expire reservation: %w", err)
			}
			expired = true
			return nil
		}
		if amountUsed > rsv.Amount {
			return fmt.Errorf("%w: used %d, reserved %d", ErrExceedsReservation, amountUsed, rsv.Amount)
		}

		q, _, err := s.loadQuota(ctx, tenantID, rsv.UserID)
		if err != nil {
			return err
		}
		if q.ID != rsv.QuotaID {
			return fmt.Errorf("%w: reservation %s targets %s", ErrQuotaNotFound, rsv.ID, rsv.QuotaID)
		}

		q.MessagesUsed += amountUsed
		record.Stamp(&q.Envelope, now)
		next, err := record.Encode(q)
		if err != nil {
			return err
		}
		if err := s.records.Put(ctx, &next); err != nil {
			return fmt.Errorf("failed to store quota: %w", err)
		}
		if _, err := s.queue.EnqueueEntry(ctx, queue.KindUpdate, next, queue.PriorityCritical); err != nil {
			return err
		}

		rsv.Status = StatusCommitted
		rsv.AmountUsed = amountUsed
		rsv.CommittedAt = &now
		if err := s.repo.Update(ctx, *rsv); err != nil {
			return fmt.Errorf("failed to commit reservation: %w", err)
		}
		committed = rsv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.log.Info("Reservation expired before commit")
		return nil, ErrReservationExpired
	}

	s.log.Debug("Quota usage committed", "reservation_id", committed.ID, "quota_id", committed.QuotaID, "used", amountUsed)
	return committed, nil
}

// Cancel отменяет ожидающий резерв
func (s *Service) Cancel(ctx context.Context, reservationID string) error {
	tenantID, err := s.authorize(ctx, tenant.ActionReserve)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rsv, err := s.repo.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if rsv.TenantID != tenantID {
			return fmt.Errorf("%w: reservation %s", tenant.ErrAccessDenied, rsv.ID)
		}
		if rsv.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, rsv.ID, rsv.Status)
		}
		rsv.Status = StatusCancelled
		return s.repo.Update(ctx, *rsv)
	})
}

// ExpireStale переводит все просроченные резервы в expired
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, "", s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}
	if n > 0 {
		s.log.Info("Stale reservations expired", "count", n)
	}
	return n, nil
}

// Available текущие счетчики квоты пользователя
func (s *Service) Available(ctx context.Context, userID string) (Usage, error) {
	tenantID, err := s.authorize(ctx, tenant.ActionRead)
	if err != nil {
		return Usage{}, err
	}

	var usage Usage
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q, _, err := s.loadQuota(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		usage, err = s.usage(ctx, q, s.clock.Now())
		return err
	})
	return usage, err
}

// Reservations резервы квоты пользователя, новые первыми
func (s *Service) Reservations(ctx context.Context, userID string, limit int) ([]Reservation, error) {
	tenantID, err := s.authorize(ctx, tenant.ActionRead)
	if err != nil {
		return nil, err
	}
	q, _, err := s.loadQuota(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, q.ID, limit)
}

// Reconcile принимает серверные счетчики, если локальное изменение квоты не ждет отправки.
// Возвращает false, если сверка отложена.
func (s *Service) Reconcile(ctx context.Context, userID string) (bool, error) {
	tenantID, err := s.authorize(ctx, tenant.ActionRead)
	if err != nil {
		return false, err
	}
	if s.remote == nil {
		return false, nil
	}

	remote, err := s.remote.CheckQuotaUsage(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check quota usage: %w", err)
	}

	adopted := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q, entry, err := s.loadQuota(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		open, err := s.queue.HasOpen(ctx, record.TableQuotas, q.ID)
		if err != nil {
			return err
		}
		if open || entry.SyncStatus != record.StatusSynced {
			return nil
		}
		if q.MessagesLimit == remote.Limit && q.MessagesUsed == remote.Used {
			return nil
		}

		q.MessagesLimit = remote.Limit
		q.MessagesUsed = remote.Used
		next, err := record.Encode(q)
		if err != nil {
			return err
		}
		if err := s.records.Put(ctx, &next); err != nil {
			return fmt.Errorf("failed to store quota: %w", err)
		}
		adopted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if adopted {
		s.log.Info("Quota reconciled with remote", "user_id", userID, "limit", remote.Limit, "used", remote.Used)
	}
	return adopted, nil
}

func (s *Service) authorize(ctx context.Context, action tenant.Action) (string, error) {
	u, ok := s.tenant.CurrentUser()
	if !ok {
		return "", tenant.ErrNoUser
	}
	if err := s.tenant.Authorize(ctx, action, string(record.TableQuotas), u.TenantID); err != nil {
		return "", err
	}
	return u.TenantID, nil
}

func (s *Service) loadQuota(ctx context.Context, tenantID, userID string) (*record.QuotaRecord, *record.Entry, error) {
	entry, err := s.records.FindQuota(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: user %s", ErrQuotaNotFound, userID)
		}
		return nil, nil, err
	}
	if entry.Deleted {
		return nil, nil, fmt.Errorf("%w: user %s", ErrQuotaNotFound, userID)
	}

	rec, err := record.Decode(*entry)
	if err != nil {
		return nil, nil, err
	}
	q, ok := rec.(*record.QuotaRecord)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is not a quota", record.ErrInvalidRecord, entry.ID)
	}
	return q, entry, nil
}

// usage сначала переводит просроченные резервы в expired, чтобы они не занимали лимит
func (s *Service) usage(ctx context.Context, q *record.QuotaRecord, now time.Time) (Usage, error) {
	if _, err := s.repo.ExpireBefore(ctx, q.ID, now); err != nil {
		return Usage{}, fmt.Errorf("failed to expire reservations: %w", err)
	}
	reserved, err := s.repo.PendingSum(ctx, q.ID, now)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to sum reservations: %w", err)
	}

	available := q.MessagesLimit - q.MessagesUsed - reserved
	if available < 0 {
		available = 0
	}
	return Usage{
		QuotaID:   q.ID,
		Limit:     q.MessagesLimit,
		Used:      q.MessagesUsed,
		Reserved:  reserved,
		Available: available,
	}, nil
}
