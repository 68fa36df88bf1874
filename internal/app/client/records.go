package client

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"

	"bizsync/internal/domain/asset"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/infrastructure/storage/sqlite"
	"bizsync/internal/utils/timeutil"
)

type activityRecorder interface {
	RecordActivity()
}

// RecordService локальная запись доменных записей: изменение и операция очереди
// сохраняются в одной транзакции, поэтому запись без операции невозможна
type RecordService struct {
	records  *sqlite.RecordRepository
	queue    *queue.Service
	tenant   *tenant.Service
	assets   *asset.Cache
	sync     activityRecorder
	tx       *sqlite.Storage
	validate *record.Validator
	clock    timeutil.Clock
	log      *slog.Logger
}

// Save создает или изменяет запись активного арендатора и ставит ее в очередь отправки
func (s *RecordService) Save(ctx context.Context, r record.Record) (*record.Entry, error) {
	table := r.Table()
	if err := table.Validate(); err != nil {
		return nil, err
	}
	u, ok := s.tenant.CurrentUser()
	if !ok {
		return nil, tenant.ErrNoUser
	}

	env := r.Meta()
	if env.TenantID == "" {
		env.TenantID = u.TenantID
	}

	existing, err := s.lookup(ctx, table, r.RecordID())
	if err != nil {
		return nil, err
	}
	action := tenant.ActionCreate
	if existing != nil {
		action = tenant.ActionUpdate
	}
	if err := s.tenant.Authorize(ctx, action, string(table), env.TenantID); err != nil {
		return nil, err
	}
	if existing != nil && !s.tenant.EnforceDataIsolation(ctx, existing.TenantID) {
		return nil, fmt.Errorf("%w: %s/%s belongs to another tenant", tenant.ErrAccessDenied, table, r.RecordID())
	}

	var entry record.Entry
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.lookup(ctx, table, r.RecordID())
		if err != nil {
			return err
		}

		kind := queue.KindCreate
		env.Version, env.BaseVersion = 0, 0
		if current != nil {
			kind = queue.KindUpdate
			env.Version = current.Version
			env.BaseVersion = current.BaseVersion
			env.LastModified = current.LastModified
		}
		env.Deleted = false
		record.Stamp(env, s.clock.Now())

		if err := s.validate.Validate(r); err != nil {
			return err
		}
		entry, err = record.Encode(r)
		if err != nil {
			return err
		}
		if err := s.records.Put(ctx, &entry); err != nil {
			return err
		}
		_, err = s.queue.EnqueueEntry(ctx, kind, entry, 0)
		return err
	})
	if err != nil {
		var verr *record.ValidationError
		if errors.As(err, &verr) {
			s.log.Warn("Record rejected", "table", table, "id", r.RecordID(), "fields", verr.Fields)
		}
		return nil, err
	}

	s.sync.RecordActivity()
	s.log.Debug("Record saved", "table", table, "id", entry.ID, "version", entry.Version)
	return &entry, nil
}

// Delete мягко удаляет запись: выставляет deleted и ставит удаление в очередь.
// Повторное удаление ничего не делает.
func (s *RecordService) Delete(ctx context.Context, table record.Table, id string) error {
	existing, err := s.records.Get(ctx, table, id)
	if err != nil {
		return err
	}
	if err := s.tenant.Authorize(ctx, tenant.ActionDelete, string(table), existing.TenantID); err != nil {
		return err
	}
	if existing.Deleted {
		return nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.records.Get(ctx, table, id)
		if err != nil {
			return err
		}
		record.SoftDelete(&e.Envelope, s.clock.Now())
		if err := s.records.Put(ctx, e); err != nil {
			return err
		}
		_, err = s.queue.EnqueueEntry(ctx, queue.KindDelete, *e, 0)
		return err
	})
	if err != nil {
		return err
	}

	s.sync.RecordActivity()
	s.log.Debug("Record deleted", "table", table, "id", id)
	return nil
}

// Get возвращает неудаленную запись активного арендатора
func (s *RecordService) Get(ctx context.Context, table record.Table, id string) (record.Record, error) {
	e, err := s.records.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if err := s.tenant.Authorize(ctx, tenant.ActionRead, string(table), e.TenantID); err != nil {
		return nil, err
	}
	if e.Deleted {
		return nil, record.ErrNotFound
	}

	if table == record.TableAssets {
		if err := s.assets.Touch(ctx, id); err != nil && !errors.Is(err, asset.ErrEntryNotFound) {
			s.log.Warn("Failed to touch cached asset", "id", id, "error", err)
		}
	}
	return record.Decode(*e)
}

// List записи таблицы активного арендатора; арендатор фильтра всегда заменяется текущим
func (s *RecordService) List(ctx context.Context, table record.Table, filter record.ListFilter) ([]record.Entry, error) {
	u, ok := s.tenant.CurrentUser()
	if !ok {
		return nil, tenant.ErrNoUser
	}
	if err := s.tenant.Authorize(ctx, tenant.ActionRead, string(table), u.TenantID); err != nil {
		return nil, err
	}
	filter.TenantID = u.TenantID
	return s.records.List(ctx, table, filter)
}

// CacheAsset учитывает скачанный файл ассета в кэше и возвращает вытесненные ассеты
func (s *RecordService) CacheAsset(ctx context.Context, id string) ([]string, error) {
	r, err := s.Get(ctx, record.TableAssets, id)
	if err != nil {
		return nil, err
	}
	a := r.(*record.Asset)
	evicted, err := s.assets.Track(ctx, a.ID, a.TenantID, a.Size)
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		s.log.Info("Asset cache evicted", "count", len(evicted))
	}
	return evicted, nil
}

func (s *RecordService) lookup(ctx context.Context, table record.Table, id string) (*record.Entry, error) {
	e, err := s.records.Get(ctx, table, id)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
