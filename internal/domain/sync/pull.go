package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/utils/timeutil"
)

// pull забирает удаленные изменения всех синхронизируемых таблиц.
// limits == nil означает полный pull; иначе забираются только перечисленные таблицы и не больше лимита.
// Ошибка возвращается, только если пропала связь; сбой одной таблицы не останавливает остальные.
func (m *Manager) pull(ctx context.Context, tenantID string, limits map[record.Table]int, res *Result) error {
	for _, table := range record.SyncableTables() {
		limit := 0
		if limits != nil {
			n, ok := limits[table]
			if !ok || n <= 0 {
				continue
			}
			limit = n
		}

		if err := m.pullTable(ctx, tenantID, table, limit, res); err != nil {
			if IsRecoverable(err) {
				return err
			}
			m.log.Error("Pull failed", "table", table, "error", err)
			res.Errors = append(res.Errors, OpError{Table: table, Operation: string(PhasePull), Error: err.Error()})
		}
	}
	return nil
}

func (m *Manager) pullTable(ctx context.Context, tenantID string, table record.Table, limit int, res *Result) error {
	cursor, err := m.cursors.GetCursor(ctx, tenantID, table)
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	pulled := 0
	for {
		page := m.cfg.PullPageSize
		if limit > 0 && limit-pulled < page {
			page = limit - pulled
		}

		rows, err := m.remote.Select(ctx, table, tenantID, cursor, page)
		if err != nil {
			return err
		}

		var applyErr error
		for _, row := range rows {
			if applyErr = m.applyRemote(ctx, table, row, res); applyErr != nil {
				break
			}
			cursor = Cursor{At: row.ServerUpdatedAt, ID: row.ID}
			pulled++
		}

		if pulled > 0 {
			if err := m.cursors.SetCursor(ctx, tenantID, table, cursor); err != nil {
				return fmt.Errorf("failed to save cursor: %w", err)
			}
		}

		m.bus.Publish(Event{
			Type:     EventProgressUpdate,
			At:       m.clock.Now(),
			Progress: &Progress{Phase: PhasePull, Table: table, Done: pulled, Total: limit},
		})

		// курсор стоит на последней примененной строке, остаток заберет следующий проход
		if applyErr != nil {
			return fmt.Errorf("failed to apply remote row: %w", applyErr)
		}
		if len(rows) < page || (limit > 0 && pulled >= limit) {
			return nil
		}
	}
}

// applyRemote применяет одну удаленную строку к локальному хранилищу
func (m *Manager) applyRemote(ctx context.Context, table record.Table, row RemoteRow, res *Result) error {
	if !m.tenant.EnforceDataIsolation(ctx, row.TenantID) {
		res.Rejected++
		return nil
	}

	incoming := record.Entry{
		Table: table,
		ID:    row.ID,
		Envelope: record.Envelope{
			SyncStatus:   record.StatusSynced,
			LastModified: remoteTimestamp(row),
			Version:      row.Version,
			BaseVersion:  row.Version,
			Deleted:      row.Deleted,
			TenantID:     row.TenantID,
		},
		Data: row.Data,
	}

	var (
		found            *conflict.Resolution
		pulled, resolved bool
	)
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		found, pulled, resolved = nil, false, false

		local, err := m.records.Get(ctx, table, row.ID)
		if errors.Is(err, record.ErrNotFound) {
			pulled = true
			return m.records.Put(ctx, &incoming)
		}
		if err != nil {
			return err
		}

		// эту версию мы уже видели, например это эхо нашей же отправки
		if local.BaseVersion == row.Version {
			return nil
		}

		if local.SyncStatus == record.StatusSynced {
			pulled = true
			return m.records.Put(ctx, &incoming)
		}

		resolution := m.resolve(*local, row)
		found = &resolution

		if resolution.Manual {
			return m.records.SetStatus(ctx, table, row.ID, record.StatusConflict)
		}

		out := resolvedEntry(*local, row, resolution)
		out.BaseVersion = row.Version
		out.SyncStatus = record.StatusPending
		if err := m.records.Put(ctx, &out); err != nil {
			return err
		}

		kind := queue.KindUpdate
		if out.Deleted {
			kind = queue.KindDelete
		}
		if _, err := m.queue.EnqueueEntry(ctx, kind, out, 0); err != nil {
			return err
		}

		pulled, resolved = true, true
		return nil
	})
	if err != nil {
		return err
	}

	if pulled {
		res.Pulled++
	}
	if resolved {
		res.Resolved++
	}
	if found != nil {
		res.Conflicts++
		m.reportConflict(ctx, table, row.ID, *found)
	}
	return nil
}

// PartialSync забирает ограниченную долю записей перечисленных таблиц для быстрого первого показа.
// Размер доли считается от большего из локального и удаленного количества и ограничивается PartialLimits.
// После успешного прохода остаток догружается фоновой синхронизацией.
func (m *Manager) PartialSync(ctx context.Context, tables []record.Table, fraction float64) (*Result, error) {
	res, err := m.partialPass(ctx, tables, fraction)
	if err != nil {
		return res, err
	}

	m.BackgroundSync(ctx)
	return res, nil
}

func (m *Manager) partialPass(ctx context.Context, tables []record.Table, fraction float64) (*Result, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("fraction must be in (0, 1], got %v", fraction)
	}
	if err := m.ready(); err != nil {
		return nil, err
	}
	if !m.pass.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.pass.Unlock()

	user, ok := m.tenant.CurrentUser()
	if !ok {
		return nil, ErrNoTenant
	}

	limits := make(map[record.Table]int, len(tables))
	for _, table := range tables {
		if err := table.Validate(); err != nil {
			return nil, err
		}
		limits[table] = m.partialLimit(ctx, user.TenantID, table, fraction)
	}

	res := m.begin(true)
	err := m.pull(ctx, user.TenantID, limits, res)
	return m.finish(res, err)
}

func (m *Manager) partialLimit(ctx context.Context, tenantID string, table record.Table, fraction float64) int {
	total, err := m.records.Count(ctx, table, tenantID)
	if err != nil {
		m.log.Warn("Failed to count local records", "table", table, "error", err)
		total = 0
	}
	if remote, err := m.remote.Count(ctx, table, tenantID); err == nil && remote > total {
		total = remote
	} else if err != nil {
		m.log.Warn("Failed to count remote records", "table", table, "error", err)
	}

	n := int(math.Floor(float64(total) * fraction))
	if limit, ok := m.cfg.PartialLimits[table]; ok && limit > 0 && n > limit {
		n = limit
	}
	return n
}

// BackgroundSync запускает полный проход в фоне и сразу возвращает управление.
// Итог доступен через события sync_complete и sync_error.
func (m *Manager) BackgroundSync(ctx context.Context) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if _, err := m.Sync(context.WithoutCancel(ctx)); err != nil {
			m.log.Debug("Background sync finished with error", "error", err)
		}
	}()
}

func remoteTimestamp(row RemoteRow) time.Time {
	if ts, err := timeutil.Normalize(row.UpdatedAt); err == nil {
		return ts
	}
	return row.ServerUpdatedAt.UTC()
}
