package client

import (
	"context"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/config"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/quota"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/utils/logger"
	"bizsync/internal/utils/timeutil"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// memRemote удаленный бэкенд в памяти с той же проверкой версии, что и у Postgres
type memRemote struct {
	mu       gosync.Mutex
	rows     map[record.Table]map[string]sync.RemoteRow
	profiles map[string]tenant.Profile
	tick     time.Time
}

func newMemRemote() *memRemote {
	return &memRemote{
		rows:     make(map[record.Table]map[string]sync.RemoteRow),
		profiles: make(map[string]tenant.Profile),
		tick:     t0,
	}
}

func (r *memRemote) Ping(context.Context) error { return nil }

func (r *memRemote) Select(_ context.Context, table record.Table, tenantID string, after sync.Cursor, limit int) ([]sync.RemoteRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []sync.RemoteRow
	for _, row := range r.rows[table] {
		if row.TenantID != tenantID {
			continue
		}
		if row.ServerUpdatedAt.Before(after.At) || (row.ServerUpdatedAt.Equal(after.At) && row.ID <= after.ID) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ServerUpdatedAt.Equal(out[j].ServerUpdatedAt) {
			return out[i].ServerUpdatedAt.Before(out[j].ServerUpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRemote) Get(_ context.Context, table record.Table, id string) (*sync.RemoteRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[table][id]
	if !ok {
		return nil, sync.ErrRemoteNotFound
	}
	return &row, nil
}

func (r *memRemote) Upsert(_ context.Context, table record.Table, row sync.RemoteRow, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[table] == nil {
		r.rows[table] = make(map[string]sync.RemoteRow)
	}
	cur, ok := r.rows[table][row.ID]
	if ok && (cur.TenantID != row.TenantID || cur.Version != expected) {
		return sync.ErrStaleWrite
	}
	r.tick = r.tick.Add(time.Second)
	row.ServerUpdatedAt = r.tick
	r.rows[table][row.ID] = row
	return nil
}

func (r *memRemote) Count(_ context.Context, table record.Table, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows[table] {
		if row.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *memRemote) FetchProfile(_ context.Context, userID string) (*tenant.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, tenant.ErrProfileNotFound
	}
	return &p, nil
}

func (r *memRemote) CheckQuotaUsage(context.Context, string) (*quota.RemoteUsage, error) {
	return nil, quota.ErrQuotaNotFound
}

func (r *memRemote) row(table record.Table, id string) (sync.RemoteRow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[table][id]
	return row, ok
}

func testConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	cfg.Store.Path = path
	cfg.Remote.DatabaseURI = ""
	cfg.Remote.RealtimeURL = ""
	cfg.Sync.AutoSync = false
	cfg.Sync.MinTriggerInterval = 0
	return cfg
}

func newApp(t *testing.T, path string, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithClock(&timeutil.FixedClock{T: t0})}, opts...)
	app, err := New(context.Background(), testConfig(t, path), logger.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func owner(tenantID string) tenant.User {
	return tenant.User{ID: uuid.NewString(), TenantID: tenantID, Role: tenant.RoleOwner}
}

func TestApp_OfflineWriteIsQueued(t *testing.T) {
	ctx := context.Background()
	app := newApp(t, t.TempDir()+"/bizsync.db")

	_, err := app.Login(ctx, owner(uuid.NewString()))
	require.NoError(t, err)

	c := &record.Contact{ID: uuid.NewString(), Name: "Alice"}
	e, err := app.Records.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, e.SyncStatus)
	assert.Equal(t, int64(1), e.Version)

	stats, err := app.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	_, err = app.Sync.TriggerSync(ctx)
	assert.ErrorIs(t, err, sync.ErrOffline)
	assert.Equal(t, sync.StateOffline, app.Sync.State())
}

func TestApp_SaveSyncDelete(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	app := newApp(t, t.TempDir()+"/bizsync.db", WithRemote(remote))

	u := owner(uuid.NewString())
	remote.profiles[u.ID] = tenant.Profile{UserID: u.ID, TenantID: u.TenantID, Role: u.Role}
	_, err := app.Login(ctx, u)
	require.NoError(t, err)
	require.True(t, app.CheckConnection(ctx).IsOnline)

	c := &record.Contact{ID: uuid.NewString(), Name: "Alice", Tags: []string{"vip"}}
	_, err = app.Records.Save(ctx, c)
	require.NoError(t, err)

	res, err := app.Sync.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	got, err := app.Records.Get(ctx, record.TableContacts, c.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusSynced, got.Meta().SyncStatus)
	assert.Equal(t, int64(1), got.Meta().BaseVersion)

	row, ok := remote.row(record.TableContacts, c.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), row.Version)

	require.NoError(t, app.Records.Delete(ctx, record.TableContacts, c.ID))
	require.NoError(t, app.Records.Delete(ctx, record.TableContacts, c.ID))

	ops, err := app.Queue.List(ctx, queue.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindDelete, ops[0].Kind)
	assert.Equal(t, queue.PriorityCritical, ops[0].Priority)

	_, err = app.Sync.Sync(ctx)
	require.NoError(t, err)

	row, _ = remote.row(record.TableContacts, c.ID)
	assert.True(t, row.Deleted)
	assert.Equal(t, int64(2), row.Version)

	_, err = app.Records.Get(ctx, record.TableContacts, c.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestApp_DeleteDominatesLaterEdit(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	app := newApp(t, t.TempDir()+"/bizsync.db", WithRemote(remote))

	u := owner(uuid.NewString())
	remote.profiles[u.ID] = tenant.Profile{UserID: u.ID, TenantID: u.TenantID, Role: u.Role}
	_, err := app.Login(ctx, u)
	require.NoError(t, err)

	id := uuid.NewString()
	_, err = app.Records.Save(ctx, &record.Contact{ID: id, Name: "Alice"})
	require.NoError(t, err)
	_, err = app.Sync.TriggerSync(ctx)
	require.NoError(t, err)

	// удаление и правка той же записи до следующей синхронизации
	require.NoError(t, app.Records.Delete(ctx, record.TableContacts, id))
	_, err = app.Records.Save(ctx, &record.Contact{ID: id, Name: "Alice 2"})
	require.NoError(t, err)

	res, err := app.Sync.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Failed)

	row, ok := remote.row(record.TableContacts, id)
	require.True(t, ok)
	assert.True(t, row.Deleted)
	assert.Equal(t, int64(3), row.Version)

	_, err = app.Records.Get(ctx, record.TableContacts, id)
	assert.ErrorIs(t, err, record.ErrNotFound)

	stats, err := app.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Failed)
}

func TestApp_SaveRejectsInvalidRecord(t *testing.T) {
	ctx := context.Background()
	app := newApp(t, t.TempDir()+"/bizsync.db")

	_, err := app.Login(ctx, owner(uuid.NewString()))
	require.NoError(t, err)

	_, err = app.Records.Save(ctx, &record.Contact{ID: uuid.NewString()})
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)

	stats, err := app.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestApp_StaffCannotDelete(t *testing.T) {
	ctx := context.Background()
	app := newApp(t, t.TempDir()+"/bizsync.db")

	staff := tenant.User{ID: uuid.NewString(), TenantID: uuid.NewString(), Role: tenant.RoleStaff}
	_, err := app.Login(ctx, staff)
	require.NoError(t, err)

	c := &record.Contact{ID: uuid.NewString(), Name: "Bob"}
	_, err = app.Records.Save(ctx, c)
	require.NoError(t, err)

	err = app.Records.Delete(ctx, record.TableContacts, c.ID)
	assert.ErrorIs(t, err, tenant.ErrAccessDenied)

	events, err := app.Tenant.RecentEvents(ctx, 10, string(tenant.EventPermissionDenied))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApp_SaveForeignTenantDenied(t *testing.T) {
	ctx := context.Background()
	app := newApp(t, t.TempDir()+"/bizsync.db")

	_, err := app.Login(ctx, owner(uuid.NewString()))
	require.NoError(t, err)

	c := &record.Contact{ID: uuid.NewString(), Name: "Eve"}
	c.TenantID = uuid.NewString()
	_, err = app.Records.Save(ctx, c)
	assert.ErrorIs(t, err, tenant.ErrAccessDenied)
}

func TestApp_LoginRejectedOnProfileMismatch(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	app := newApp(t, t.TempDir()+"/bizsync.db", WithRemote(remote))

	u := owner(uuid.NewString())
	remote.profiles[u.ID] = tenant.Profile{UserID: u.ID, TenantID: u.TenantID, Role: tenant.RoleStaff}

	_, err := app.Login(ctx, u)
	assert.ErrorIs(t, err, ErrLoginRejected)

	_, ok := app.CurrentUser()
	assert.False(t, ok)
}

func TestApp_ResumeAndLogout(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/bizsync.db"
	u := owner(uuid.NewString())

	first, err := New(ctx, testConfig(t, path), logger.Discard(), WithClock(&timeutil.FixedClock{T: t0}))
	require.NoError(t, err)
	_, err = first.Login(ctx, u)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	app := newApp(t, path)
	got, err := app.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, u.TenantID, got.TenantID)
	assert.Equal(t, u.TenantID, app.Tenant.TenantID())

	require.NoError(t, app.Logout(ctx))
	_, ok := app.CurrentUser()
	assert.False(t, ok)

	_, err = app.Resume(ctx, "")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestApp_CacheAsset(t *testing.T) {
	ctx := context.Background()
	app := newApp(t, t.TempDir()+"/bizsync.db")

	_, err := app.Login(ctx, owner(uuid.NewString()))
	require.NoError(t, err)

	a := &record.Asset{ID: uuid.NewString(), FileName: "logo.png", MimeType: "image/png", Size: 1024}
	_, err = app.Records.Save(ctx, a)
	require.NoError(t, err)

	evicted, err := app.Records.CacheAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, evicted)

	used, _, err := app.Assets.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), used)
}

func TestApp_MigrateRemoteWithoutBackend(t *testing.T) {
	app := newApp(t, t.TempDir()+"/bizsync.db")
	assert.ErrorIs(t, app.MigrateRemote(), ErrRemoteNotConfigured)
}

func TestConfigFrom(t *testing.T) {
	base := config.Sync{
		ConflictStrategy: "manual",
		PartialLimits:    map[string]int{"contacts": 1000, "assets": 100},
		BackoffBase:      time.Second,
	}

	cfg, err := ConfigFrom(base)
	require.NoError(t, err)
	assert.Equal(t, map[record.Table]int{record.TableContacts: 1000, record.TableAssets: 100}, cfg.PartialLimits)
	assert.Equal(t, time.Second, cfg.Backoff.Base)

	bad := base
	bad.ConflictStrategy = "coin_flip"
	_, err = ConfigFrom(bad)
	assert.Error(t, err)

	bad = base
	bad.PartialLimits = map[string]int{"secrets": 1}
	_, err = ConfigFrom(bad)
	assert.Error(t, err)
}
