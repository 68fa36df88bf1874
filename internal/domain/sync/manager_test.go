package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/utils/logger"
	"bizsync/internal/utils/timeutil"
)

const (
	tenantA = "0b6a4d0e-6a39-4a2c-9d49-7a1f8e1c0a01"
	tenantB = "5f1e2c3d-4b5a-4e6f-8a7b-9c0d1e2f3a4b"
	userA   = "9d8c7b6a-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Interval:               30 * time.Second,
		ActiveMultiplier:       0.5,
		BackgroundInterval:     5 * time.Minute,
		BatchSize:              50,
		MaxRetries:             3,
		Backoff:                Backoff{Base: time.Millisecond, Multiplier: 2, Max: 5 * time.Millisecond},
		ReconnectMax:           time.Hour,
		MaxConsecutiveFailures: 5,
		Strategy:               conflict.StrategyLastWriteWins,
		PullPageSize:           100,
		PushConcurrency:        4,
	}
}

type device struct {
	m       *Manager
	records *memRecords
	queue   *memQueue
	cursors *memCursors
	guard   *fakeGuard
	conn    *ConnectionMonitor
	clock   *timeutil.FixedClock
	events  *eventLog
}

type eventLog struct {
	mu     stdsync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, e := range l.events {
		if e.Type == EventStatusChange {
			out = append(out, e.To)
		}
	}
	return out
}

func newDevice(t *testing.T, remote *fakeRemote, cfg Config) *device {
	t.Helper()

	d := &device{
		records: newMemRecords(),
		queue:   &memQueue{},
		cursors: &memCursors{cursors: make(map[string]Cursor)},
		guard:   &fakeGuard{user: &tenant.User{ID: userA, TenantID: tenantA, Role: tenant.RoleOwner}},
		clock:   &timeutil.FixedClock{T: t0},
		events:  &eventLog{},
	}
	d.conn = NewConnectionMonitor(remote, time.Second, d.clock, logger.Discard())
	d.m = NewManager(cfg, Deps{
		Queue:      d.queue,
		Records:    d.records,
		Cursors:    d.cursors,
		Tx:         directTx{},
		Remote:     remote,
		Tenant:     d.guard,
		Connection: d.conn,
		Activity:   NewActivityMonitor(2*time.Minute, 10*time.Minute, d.clock),
		Clock:      d.clock,
		Log:        logger.Discard(),
	})
	d.m.Subscribe(d.events.add)
	t.Cleanup(d.m.Close)

	require.True(t, d.conn.Check(context.Background()).IsOnline)
	return d
}

// write локальная правка контакта так, как ее делает сервисный слой
func (d *device) write(t *testing.T, c *record.Contact, at time.Time) record.Entry {
	t.Helper()
	ctx := context.Background()

	kind := queue.KindCreate
	if existing, err := d.records.Get(ctx, record.TableContacts, c.ID); err == nil {
		c.Envelope = existing.Envelope
		kind = queue.KindUpdate
	} else {
		c.TenantID = tenantA
	}
	record.Stamp(&c.Envelope, at)

	e, err := record.Encode(c)
	require.NoError(t, err)
	require.NoError(t, d.records.Put(ctx, &e))
	_, err = d.queue.EnqueueEntry(ctx, kind, e, 0)
	require.NoError(t, err)
	return e
}

func contactName(t *testing.T, e record.Entry) string {
	t.Helper()
	rec, err := record.Decode(e)
	require.NoError(t, err)
	return rec.(*record.Contact).Name
}

func TestSync_TwoDevicesConvergeLastWriteWins(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	a := newDevice(t, remote, testConfig())
	b := newDevice(t, remote, testConfig())
	id := uuid.NewString()

	a.write(t, &record.Contact{ID: id, Name: "Alice"}, t0)
	res, err := a.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, record.StatusSynced, a.records.entry(record.TableContacts, id).SyncStatus)

	res, err = b.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	a.write(t, &record.Contact{ID: id, Name: "Alice from A"}, t0.Add(time.Minute))
	b.write(t, &record.Contact{ID: id, Name: "Alice from B"}, t0.Add(2*time.Minute))

	_, err = b.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remote.row(record.TableContacts, id).Version)

	res, err = a.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, a.guard.count(tenant.EventSyncConflict))

	_, err = b.m.TriggerSync(ctx)
	require.NoError(t, err)

	row := remote.row(record.TableContacts, id)
	ea := a.records.entry(record.TableContacts, id)
	eb := b.records.entry(record.TableContacts, id)

	// обе версии были 2, итог ровно на единицу больше
	assert.Equal(t, int64(3), row.Version)
	assert.Equal(t, int64(3), ea.Version)
	assert.Equal(t, int64(3), eb.Version)
	assert.Equal(t, "Alice from B", contactName(t, ea))
	assert.Equal(t, "Alice from B", contactName(t, eb))
	assert.Equal(t, record.StatusSynced, ea.SyncStatus)
	assert.Equal(t, record.StatusSynced, eb.SyncStatus)
	assert.Equal(t, int64(3), ea.BaseVersion)
	assert.Equal(t, int64(3), eb.BaseVersion)
}

func TestSync_DuplicateDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	id := uuid.NewString()

	e := d.write(t, &record.Contact{ID: id, Name: "Bob"}, t0)
	_, err := d.m.TriggerSync(ctx)
	require.NoError(t, err)

	// повторная доставка той же операции
	_, err = d.queue.EnqueueEntry(ctx, queue.KindCreate, e, 0)
	require.NoError(t, err)
	res, err := d.m.TriggerSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pushed)
	assert.Zero(t, res.Conflicts)
	assert.Equal(t, int64(1), remote.row(record.TableContacts, id).Version)
	assert.Equal(t, record.StatusSynced, d.records.entry(record.TableContacts, id).SyncStatus)
}

func TestSync_SingleFlight(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	d.write(t, &record.Contact{ID: uuid.NewString(), Name: "Carol"}, t0)

	started := make(chan struct{})
	release := make(chan struct{})
	var once stdsync.Once
	remote.onUpsert = func() {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.m.TriggerSync(ctx)
		done <- err
	}()

	<-started
	assert.Equal(t, StateSyncing, d.m.State())
	_, err := d.m.TriggerSync(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = d.m.PartialSync(ctx, []record.Table{record.TableContacts}, 0.5)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, d.m.State())
	assert.Equal(t, 1, remote.upserts)
}

func TestTriggerSync_FailsFastWithoutConnectionOrTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("offline", func(t *testing.T) {
		remote := newFakeRemote()
		d := newDevice(t, remote, testConfig())
		remote.setPingErr(errors.New("dial tcp: connection refused"))
		require.False(t, d.conn.Check(ctx).IsOnline)

		_, err := d.m.TriggerSync(ctx)
		assert.ErrorIs(t, err, ErrOffline)
		assert.Equal(t, StateOffline, d.m.State())
		assert.Zero(t, d.events.count(EventSyncStart))
	})

	t.Run("no tenant", func(t *testing.T) {
		d := newDevice(t, newFakeRemote(), testConfig())
		d.guard.user = nil

		_, err := d.m.TriggerSync(ctx)
		assert.ErrorIs(t, err, ErrNoTenant)
		assert.Equal(t, StateOffline, d.m.State())
	})

	t.Run("reconnect returns to idle", func(t *testing.T) {
		remote := newFakeRemote()
		d := newDevice(t, remote, testConfig())
		d.conn.SetOnline(false)
		assert.Equal(t, StateOffline, d.m.State())

		d.conn.SetOnline(true)
		assert.Equal(t, StateIdle, d.m.State())
	})
}

func TestTriggerSync_Throttled(t *testing.T) {
	cfg := testConfig()
	cfg.MinTriggerInterval = time.Hour
	d := newDevice(t, newFakeRemote(), cfg)

	_, err := d.m.TriggerSync(context.Background())
	require.NoError(t, err)
	_, err = d.m.TriggerSync(context.Background())
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestSync_RetriesTransientErrors(t *testing.T) {
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	id := uuid.NewString()
	d.write(t, &record.Contact{ID: id, Name: "Dave"}, t0)

	calls := 0
	remote.upsertErr = func(RemoteRow) error {
		calls++
		if calls <= 2 {
			return errTransient
		}
		return nil
	}

	res, err := d.m.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, d.queue.count(queue.StatusCompleted))
	assert.Equal(t, 2, d.queue.ops[0].RetryCount)
}

func TestSync_ExhaustedRetriesMarkFailedAndFlagRecord(t *testing.T) {
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	bad := uuid.NewString()
	good := uuid.NewString()
	d.write(t, &record.Contact{ID: bad, Name: "Bad"}, t0)
	d.write(t, &record.Contact{ID: good, Name: "Good"}, t0)

	remote.upsertErr = func(row RemoteRow) error {
		if row.ID == bad {
			return errTransient
		}
		return nil
	}

	res, err := d.m.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, bad, res.Errors[0].RecordID)

	assert.Equal(t, record.StatusError, d.records.entry(record.TableContacts, bad).SyncStatus)
	assert.Equal(t, record.StatusSynced, d.records.entry(record.TableContacts, good).SyncStatus)
	assert.Equal(t, 1, d.queue.count(queue.StatusFailed))
}

func TestSync_ConnectionLossReleasesAndReconnects(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxConsecutiveFailures = 2
	cfg.Backoff = Backoff{Base: time.Hour, Multiplier: 2}

	remote := newFakeRemote()
	d := newDevice(t, remote, cfg)
	d.write(t, &record.Contact{ID: uuid.NewString(), Name: "Eve"}, t0)

	remote.setPingErr(errTransient)
	remote.upsertErr = func(RemoteRow) error { return errTransient }

	res, err := d.m.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
	assert.False(t, res.Success)
	assert.Equal(t, StateReconnecting, d.m.State())
	assert.Equal(t, 1, d.queue.count(queue.StatusPending))
	assert.Zero(t, d.queue.count(queue.StatusFailed))

	_, err = d.m.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, d.m.State())
	assert.Equal(t, 1, d.events.count(EventUserNotification))

	stats, err := d.m.GetSyncStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FailedSyncs)
	assert.Equal(t, 2, stats.ConsecutiveFailures)
	assert.Equal(t, 1, stats.Queue.Pending)

	// после восстановления связи проход снова успешен и сбрасывает счетчик
	remote.setPingErr(nil)
	remote.upsertErr = nil
	d.conn.Check(context.Background())
	_, err = d.m.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, d.m.State())

	stats, err = d.m.GetSyncStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ConsecutiveFailures)
	assert.Equal(t, 1, stats.TotalPushed)
}

type brokenQueue struct {
	*memQueue
}

func (brokenQueue) DequeueBatch(context.Context, int) ([]queue.PriorityOperation, error) {
	return nil, errors.New("disk I/O failure")
}

func TestSync_FatalErrorSetsErrorState(t *testing.T) {
	d := newDevice(t, newFakeRemote(), testConfig())
	d.m.queue = brokenQueue{d.queue}

	_, err := d.m.TriggerSync(context.Background())
	require.Error(t, err)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, StateError, d.m.State())
	assert.Equal(t, 1, d.events.count(EventSyncError))
	assert.Equal(t, []State{StateSyncing, StateError}, d.events.states())
}

func TestSync_ManualConflict(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Strategy = conflict.StrategyManual

	remote := newFakeRemote()
	a := newDevice(t, remote, cfg)
	b := newDevice(t, remote, cfg)
	id := uuid.NewString()

	a.write(t, &record.Contact{ID: id, Name: "Frank", Notes: "vip"}, t0)
	_, err := a.m.TriggerSync(ctx)
	require.NoError(t, err)
	_, err = b.m.TriggerSync(ctx)
	require.NoError(t, err)

	b.write(t, &record.Contact{ID: id, Name: "Frank B"}, t0.Add(time.Minute))
	_, err = b.m.TriggerSync(ctx)
	require.NoError(t, err)

	a.write(t, &record.Contact{ID: id, Name: "Frank A", Notes: "vip"}, t0.Add(2*time.Minute))
	res, err := a.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, res.Conflicts, 1)
	assert.Equal(t, 1, res.Unresolved)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Errors)
	assert.Zero(t, a.queue.count(queue.StatusFailed))
	assert.Equal(t, StateIdle, a.m.State())
	assert.GreaterOrEqual(t, a.events.count(EventConflictDetected), 1)

	local := a.records.entry(record.TableContacts, id)
	assert.Equal(t, record.StatusConflict, local.SyncStatus)
	assert.Equal(t, "Frank A", contactName(t, local))
	assert.Equal(t, int64(2), remote.row(record.TableContacts, id).Version)

	_, err = a.m.ResolveConflict(ctx, record.TableContacts, uuid.NewString(), conflict.WinnerRemote)
	assert.ErrorIs(t, err, record.ErrNotFound)

	out, err := a.m.ResolveConflict(ctx, record.TableContacts, id, conflict.WinnerRemote)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Version)
	assert.Equal(t, record.StatusPending, out.SyncStatus)
	assert.True(t, out.LastModified.After(t0.Add(2*time.Minute)), "resolution must advance last_modified")

	_, err = a.m.TriggerSync(ctx)
	require.NoError(t, err)

	row := remote.row(record.TableContacts, id)
	assert.Equal(t, int64(3), row.Version)
	local = a.records.entry(record.TableContacts, id)
	assert.Equal(t, record.StatusSynced, local.SyncStatus)
	assert.Equal(t, "Frank B", contactName(t, local))

	// заметки принадлежат пользователю и переживают выбор серверной версии
	rec, err := record.Decode(local)
	require.NoError(t, err)
	assert.Equal(t, "vip", rec.(*record.Contact).Notes)

	_, err = a.m.ResolveConflict(ctx, record.TableContacts, id, conflict.WinnerLocal)
	assert.ErrorIs(t, err, ErrNoConflict)
}

func TestSync_PullRejectsForeignTenantRows(t *testing.T) {
	remote := newFakeRemote()
	remote.leakTenants = true
	d := newDevice(t, remote, testConfig())

	own := uuid.NewString()
	foreign := uuid.NewString()
	remote.seed(record.TableContacts, RemoteRow{ID: own, TenantID: tenantA, Data: contactJSON(own, "Own"), Version: 1, UpdatedAt: "2024-03-01T09:00:00Z"})
	remote.seed(record.TableContacts, RemoteRow{ID: foreign, TenantID: tenantB, Data: contactJSON(foreign, "Foreign"), Version: 1, UpdatedAt: "2024-03-01T09:00:00Z"})

	res, err := d.m.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, d.guard.count(tenant.EventDataAccessViolation))

	_, err = d.records.Get(context.Background(), record.TableContacts, foreign)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestSync_PushRejectsForeignTenantRecord(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	id := uuid.NewString()

	c := &record.Contact{ID: id, Name: "Mallory", Envelope: record.Envelope{TenantID: tenantB}}
	record.Stamp(&c.Envelope, t0)
	e, err := record.Encode(c)
	require.NoError(t, err)
	require.NoError(t, d.records.Put(ctx, &e))
	_, err = d.queue.EnqueueEntry(ctx, queue.KindCreate, e, 0)
	require.NoError(t, err)

	res, err := d.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, remote.upserts)
	assert.Equal(t, record.StatusError, d.records.entry(record.TableContacts, id).SyncStatus)
}

func TestSync_PullResolvesAgainstPendingLocalEdit(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	d := newDevice(t, remote, testConfig())
	id := uuid.NewString()

	d.write(t, &record.Contact{ID: id, Name: "Grace"}, t0)
	_, err := d.m.TriggerSync(ctx)
	require.NoError(t, err)

	// сервер получил более новую правку, пока локальная еще не ушла
	remote.seed(record.TableContacts, RemoteRow{
		ID: id, TenantID: tenantA, Data: contactJSON(id, "Grace remote"), Version: 2,
		UpdatedAt: timeutil.Format(t0.Add(10 * time.Minute)),
	})
	d.write(t, &record.Contact{ID: id, Name: "Grace local"}, t0.Add(time.Minute))
	e := d.records.entry(record.TableContacts, id)
	d.queue.ops[len(d.queue.ops)-1].Status = queue.StatusCompleted

	res := &Result{}
	require.NoError(t, d.m.pull(ctx, tenantA, nil, res))
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, d.events.count(EventUserNotification))

	got := d.records.entry(record.TableContacts, id)
	assert.Equal(t, "Grace remote", contactName(t, got))
	assert.Equal(t, e.Version+1, got.Version)
	assert.Equal(t, int64(2), got.BaseVersion)
	assert.Equal(t, record.StatusPending, got.SyncStatus)
	assert.Equal(t, 1, d.queue.count(queue.StatusPending))
}

func TestPartialSync(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.PullPageSize = 2
	cfg.PartialLimits = map[record.Table]int{record.TableContacts: 3}

	remote := newFakeRemote()
	for i := 0; i < 10; i++ {
		id := uuid.NewString()
		remote.seed(record.TableContacts, RemoteRow{ID: id, TenantID: tenantA, Data: contactJSON(id, fmt.Sprintf("c%d", i)), Version: 1, UpdatedAt: "2024-03-01T09:00:00Z"})
	}
	for i := 0; i < 4; i++ {
		id := uuid.NewString()
		data := []byte(fmt.Sprintf(`{"id":%q,"name":"t%d","body":"hi"}`, id, i))
		remote.seed(record.TableTemplates, RemoteRow{ID: id, TenantID: tenantA, Data: data, Version: 1, UpdatedAt: "2024-03-01T09:00:00Z"})
	}
	d := newDevice(t, remote, cfg)

	_, err := d.m.PartialSync(ctx, []record.Table{record.TableContacts}, 0)
	assert.Error(t, err)
	_, err = d.m.PartialSync(ctx, []record.Table{record.TableContacts}, 1.5)
	assert.Error(t, err)

	res, err := d.m.PartialSync(ctx, []record.Table{record.TableContacts, record.TableTemplates}, 0.5)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 5, res.Pulled)

	// остаток догружает фоновый проход, запущенный следом
	d.m.Wait()
	assert.Equal(t, 2, d.events.count(EventSyncComplete))
	n, _ := d.records.Count(ctx, record.TableContacts, tenantA)
	assert.Equal(t, 10, n)
	n, _ = d.records.Count(ctx, record.TableTemplates, tenantA)
	assert.Equal(t, 4, n)

	res, err = d.m.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Pulled)
}

func TestPartialSync_NoBackgroundPassOnFailure(t *testing.T) {
	d := newDevice(t, newFakeRemote(), testConfig())

	_, err := d.m.PartialSync(context.Background(), []record.Table{"unknown"}, 0.5)
	require.Error(t, err)

	d.m.Wait()
	assert.Zero(t, d.events.count(EventSyncComplete))
	assert.Zero(t, d.events.count(EventSyncStart))
}

func TestBackgroundSync(t *testing.T) {
	d := newDevice(t, newFakeRemote(), testConfig())
	d.write(t, &record.Contact{ID: uuid.NewString(), Name: "Heidi"}, t0)

	ctx, cancel := context.WithCancel(context.Background())
	d.m.BackgroundSync(ctx)
	cancel()
	d.m.Wait()

	assert.Equal(t, 1, d.events.count(EventSyncComplete))
	assert.Equal(t, 1, d.queue.count(queue.StatusCompleted))
}

func TestAddToSyncQueue(t *testing.T) {
	d := newDevice(t, newFakeRemote(), testConfig())

	id, err := d.m.AddToSyncQueue(context.Background(), record.TableActivityLogs, queue.KindCreate, uuid.NewString(), []byte(`{}`), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, queue.PriorityLow, d.queue.ops[0].Priority)
}

func contactJSON(id, name string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"name":%q}`, id, name))
}
