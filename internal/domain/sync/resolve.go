package sync

import (
	"context"
	"errors"
	"fmt"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
)

// reportConflict пишет заметку аудита и уведомляет подписчиков
func (m *Manager) reportConflict(ctx context.Context, table record.Table, id string, res conflict.Resolution) {
	m.log.Info("Conflict resolved",
		"table", table, "record_id", id, "winner", res.Winner, "manual", res.Manual,
		"version", res.Version, "audit_note", res.AuditNote)

	severity := tenant.SeverityLow
	if res.Manual {
		severity = tenant.SeverityMedium
	}
	m.tenant.Audit(ctx, tenant.Event{
		Type:     tenant.EventSyncConflict,
		Resource: string(table),
		Action:   string(res.Winner),
		Severity: severity,
		Details: map[string]string{
			"record_id":  id,
			"audit_note": res.AuditNote,
		},
	})

	if res.Manual {
		m.bus.Publish(Event{
			Type: EventConflictDetected,
			At:   m.clock.Now(),
			Conflict: &ConflictInfo{
				Table:     table,
				RecordID:  id,
				Winner:    res.Winner,
				Manual:    true,
				AuditNote: res.AuditNote,
			},
		})
	}

	if res.UserNotice != "" {
		m.bus.Publish(Event{Type: EventUserNotification, At: m.clock.Now(), Message: res.UserNotice})
	}
}

// ResolveConflict применяет решение пользователя по записи в состоянии conflict.
// Итог сохраняется локально и ставится в очередь отправки.
func (m *Manager) ResolveConflict(ctx context.Context, table record.Table, id string, choice conflict.Winner) (*record.Entry, error) {
	local, err := m.records.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if local.SyncStatus != record.StatusConflict {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoConflict, table, id)
	}
	if !m.tenant.EnforceDataIsolation(ctx, local.TenantID) {
		return nil, ErrAccessDenied
	}

	remote, err := m.remote.Get(ctx, table, id)
	if errors.Is(err, ErrRemoteNotFound) {
		remote = &RemoteRow{ID: id, TenantID: local.TenantID}
	} else if err != nil {
		return nil, err
	}

	res, err := conflict.ApplyManual(conflict.Input{
		Table:    table,
		RecordID: id,
		Local: conflict.Side{
			Data:    local.Data,
			Version: local.Version,
			Deleted: local.Deleted,
		},
		Remote: conflict.Side{
			Data:      remote.Data,
			Timestamp: remote.UpdatedAt,
			Version:   remote.Version,
			Deleted:   remote.Deleted,
		},
	}, choice)
	if err != nil {
		return nil, err
	}

	out := resolvedEntry(*local, *remote, res)
	out.BaseVersion = remote.Version
	// решение пользователя такая же локальная правка: штамп двигает метку и доводит версию до итоговой
	out.Version = res.Version - 1
	if local.LastModified.After(out.LastModified) {
		out.LastModified = local.LastModified
	}
	record.Stamp(&out.Envelope, m.clock.Now())

	err = m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.records.Put(ctx, &out); err != nil {
			return err
		}
		kind := queue.KindUpdate
		if out.Deleted {
			kind = queue.KindDelete
		}
		_, err := m.queue.EnqueueEntry(ctx, kind, out, 0)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store resolution: %w", err)
	}

	m.reportConflict(ctx, table, id, res)
	return &out, nil
}
