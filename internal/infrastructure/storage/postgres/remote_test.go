package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain/quota"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/utils/logger"
)

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("ping", nil))

	err := wrapErr("ping", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	assert.ErrorIs(t, err, sync.ErrRemoteUnavailable)
	assert.True(t, sync.IsRecoverable(err))

	err = wrapErr("select", context.DeadlineExceeded)
	assert.ErrorIs(t, err, sync.ErrRemoteUnavailable)

	plain := errors.New("syntax error at or near")
	err = wrapErr("select", plain)
	assert.ErrorIs(t, err, plain)
	assert.NotErrorIs(t, err, sync.ErrRemoteUnavailable)
}

// newRemote поднимает адаптер на базе из BIZSYNC_TEST_DATABASE_URI; без нее тест пропускается
func newRemote(t *testing.T) *Remote {
	t.Helper()
	uri := os.Getenv("BIZSYNC_TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("BIZSYNC_TEST_DATABASE_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := New(ctx, uri, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(""))
	return NewRemote(st, logger.Discard())
}

func TestRemote_UpsertVersionGuard(t *testing.T) {
	r := newRemote(t)
	ctx := context.Background()
	tenantID := uuid.NewString()
	id := uuid.NewString()

	row := sync.RemoteRow{
		ID:        id,
		TenantID:  tenantID,
		Data:      json.RawMessage(`{"id":"` + id + `","name":"Alice"}`),
		Version:   1,
		UpdatedAt: "2024-03-01T10:00:00Z",
	}
	require.NoError(t, r.Upsert(ctx, record.TableContacts, row, 0))
	assert.ErrorIs(t, r.Upsert(ctx, record.TableContacts, row, 0), sync.ErrStaleWrite)

	row.Version = 2
	require.NoError(t, r.Upsert(ctx, record.TableContacts, row, 1))
	assert.ErrorIs(t, r.Upsert(ctx, record.TableContacts, row, 1), sync.ErrStaleWrite)

	foreign := row
	foreign.TenantID = uuid.NewString()
	foreign.Version = 3
	assert.ErrorIs(t, r.Upsert(ctx, record.TableContacts, foreign, 2), sync.ErrStaleWrite)

	got, err := r.Get(ctx, record.TableContacts, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, tenantID, got.TenantID)

	_, err = r.Get(ctx, record.TableContacts, uuid.NewString())
	assert.ErrorIs(t, err, sync.ErrRemoteNotFound)
}

func TestRemote_SelectKeyset(t *testing.T) {
	r := newRemote(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	for i := 0; i < 5; i++ {
		id := uuid.NewString()
		require.NoError(t, r.Upsert(ctx, record.TableGroups, sync.RemoteRow{
			ID: id, TenantID: tenantID, Data: json.RawMessage(`{"id":"` + id + `","name":"g"}`),
			Version: 1, UpdatedAt: "2024-03-01T10:00:00Z",
		}, 0))
	}

	var (
		cursor sync.Cursor
		seen   []string
	)
	for {
		rows, err := r.Select(ctx, record.TableGroups, tenantID, cursor, 2)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			seen = append(seen, row.ID)
			cursor = sync.Cursor{At: row.ServerUpdatedAt, ID: row.ID}
		}
	}
	assert.Len(t, seen, 5)

	n, err := r.Count(ctx, record.TableGroups, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rows, err := r.Select(ctx, record.TableGroups, uuid.NewString(), sync.Cursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRemote_ProfileAndQuota(t *testing.T) {
	r := newRemote(t)
	ctx := context.Background()
	tenantID := uuid.NewString()
	userID := uuid.NewString()

	_, err := r.FetchProfile(ctx, userID)
	assert.ErrorIs(t, err, tenant.ErrProfileNotFound)
	_, err = r.CheckQuotaUsage(ctx, userID)
	assert.ErrorIs(t, err, quota.ErrQuotaNotFound)

	require.NoError(t, r.Upsert(ctx, record.TableProfiles, sync.RemoteRow{
		ID: userID, TenantID: tenantID, Data: json.RawMessage(`{"id":"` + userID + `","role":"staff"}`),
		Version: 1, UpdatedAt: "2024-03-01T10:00:00Z",
	}, 0))
	quotaID := uuid.NewString()
	require.NoError(t, r.Upsert(ctx, record.TableQuotas, sync.RemoteRow{
		ID: quotaID, TenantID: tenantID,
		Data:    json.RawMessage(`{"id":"` + quotaID + `","user_id":"` + userID + `","messages_limit":1000,"messages_used":600}`),
		Version: 1, UpdatedAt: "2024-03-01T10:00:00Z",
	}, 0))

	p, err := r.FetchProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, p.TenantID)
	assert.Equal(t, tenant.RoleStaff, p.Role)

	u, err := r.CheckQuotaUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, quota.RemoteUsage{QuotaID: quotaID, Limit: 1000, Used: 600}, *u)
}
