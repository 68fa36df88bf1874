package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/tenant"
)

type recordKey struct {
	table record.Table
	id    string
}

type memRecords struct {
	mu   stdsync.Mutex
	rows map[recordKey]record.Entry
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[recordKey]record.Entry)}
}

func (m *memRecords) Get(_ context.Context, table record.Table, id string) (*record.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[recordKey{table, id}]
	if !ok {
		return nil, record.ErrNotFound
	}
	return &e, nil
}

func (m *memRecords) Put(_ context.Context, e *record.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[recordKey{e.Table, e.ID}] = *e
	return nil
}

func (m *memRecords) List(_ context.Context, table record.Table, f record.ListFilter) ([]record.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []record.Entry
	for k, e := range m.rows {
		if k.table == table && (f.TenantID == "" || e.TenantID == f.TenantID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRecords) Count(_ context.Context, table record.Table, tenantID string) (int, error) {
	rows, _ := m.List(context.Background(), table, record.ListFilter{TenantID: tenantID})
	return len(rows), nil
}

func (m *memRecords) Acknowledge(_ context.Context, table record.Table, id string, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[recordKey{table, id}]
	if !ok {
		return false, record.ErrNotFound
	}
	e.BaseVersion = version
	synced := e.Version == version
	if synced {
		e.SyncStatus = record.StatusSynced
	}
	m.rows[recordKey{table, id}] = e
	return synced, nil
}

func (m *memRecords) SetStatus(_ context.Context, table record.Table, id string, status record.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[recordKey{table, id}]
	if !ok {
		return record.ErrNotFound
	}
	e.SyncStatus = status
	m.rows[recordKey{table, id}] = e
	return nil
}

func (m *memRecords) PurgeTenant(context.Context, string) (int64, error) { return 0, nil }

func (m *memRecords) entry(table record.Table, id string) record.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[recordKey{table, id}]
}

// memQueue упрощенная очередь без свертки
type memQueue struct {
	mu  stdsync.Mutex
	ops []*queue.Operation
}

func (q *memQueue) Enqueue(_ context.Context, table record.Table, kind queue.Kind, recordID string, payload json.RawMessage, priority queue.Priority) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if priority == 0 {
		priority = queue.DerivePriority(table, kind)
	}
	op := &queue.Operation{
		ID:         uuid.NewString(),
		Seq:        int64(len(q.ops) + 1),
		Table:      table,
		Kind:       kind,
		RecordID:   recordID,
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Status:     queue.StatusPending,
	}
	q.ops = append(q.ops, op)
	return op.ID, nil
}

func (q *memQueue) EnqueueEntry(ctx context.Context, kind queue.Kind, e record.Entry, priority queue.Priority) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, e.Table, kind, e.ID, payload, priority)
}

func (q *memQueue) DequeueBatch(_ context.Context, max int) ([]queue.PriorityOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queue.PriorityOperation
	for _, op := range q.ops {
		if len(out) >= max {
			break
		}
		if op.Status == queue.StatusPending {
			op.Status = queue.StatusProcessing
			out = append(out, queue.PriorityOperation{Operation: *op})
		}
	}
	return out, nil
}

func (q *memQueue) set(id string, fn func(op *queue.Operation)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.ID == id {
			fn(op)
			return nil
		}
	}
	return queue.ErrOperationNotFound
}

func (q *memQueue) MarkCompleted(_ context.Context, op queue.PriorityOperation) error {
	return q.set(op.ID, func(o *queue.Operation) { o.Status = queue.StatusCompleted })
}

func (q *memQueue) MarkFailed(_ context.Context, op queue.PriorityOperation, cause error) error {
	return q.set(op.ID, func(o *queue.Operation) {
		o.Status = queue.StatusFailed
		o.Error = cause.Error()
	})
}

func (q *memQueue) MarkRetry(_ context.Context, op *queue.PriorityOperation, cause error) error {
	op.RetryCount++
	return q.set(op.ID, func(o *queue.Operation) {
		o.RetryCount++
		o.Error = cause.Error()
	})
}

func (q *memQueue) Release(_ context.Context, op queue.PriorityOperation) error {
	return q.set(op.ID, func(o *queue.Operation) { o.Status = queue.StatusPending })
}

func (q *memQueue) HasOpen(_ context.Context, table record.Table, recordID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.Table == table && op.RecordID == recordID && !op.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueue) Stats(context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s queue.Stats
	for _, op := range q.ops {
		switch op.Status {
		case queue.StatusPending:
			s.Pending++
		case queue.StatusProcessing:
			s.Processing++
		case queue.StatusCompleted:
			s.Completed++
		case queue.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (q *memQueue) count(status queue.Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if op.Status == status {
			n++
		}
	}
	return n
}

// fakeRemote общий для нескольких устройств сервер с проверкой версии при записи
type fakeRemote struct {
	mu      stdsync.Mutex
	rows    map[recordKey]RemoteRow
	tick    time.Time
	pingErr error
	// leakTenants отключает фильтр по арендатору в Select
	leakTenants bool
	// upsertErr если задана, вызывается перед каждой записью
	upsertErr func(row RemoteRow) error
	upserts   int
	// onUpsert вызывается после успешной записи, без блокировки
	onUpsert func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows: make(map[recordKey]RemoteRow),
		tick: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRemote) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *fakeRemote) setPingErr(err error) {
	r.mu.Lock()
	r.pingErr = err
	r.mu.Unlock()
}

func (r *fakeRemote) Select(_ context.Context, table record.Table, tenantID string, after Cursor, limit int) ([]RemoteRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RemoteRow
	for k, row := range r.rows {
		if k.table != table || (!r.leakTenants && row.TenantID != tenantID) {
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

func (r *fakeRemote) Get(_ context.Context, table record.Table, id string) (*RemoteRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[recordKey{table, id}]
	if !ok {
		return nil, ErrRemoteNotFound
	}
	return &row, nil
}

func (r *fakeRemote) Upsert(_ context.Context, table record.Table, row RemoteRow, expected int64) error {
	r.mu.Lock()
	if r.upsertErr != nil {
		if err := r.upsertErr(row); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	cur, ok := r.rows[recordKey{table, row.ID}]
	if (ok && cur.Version != expected) || (!ok && expected != 0) {
		r.mu.Unlock()
		return ErrStaleWrite
	}
	r.tick = r.tick.Add(time.Second)
	row.ServerUpdatedAt = r.tick
	r.rows[recordKey{table, row.ID}] = row
	r.upserts++
	hook := r.onUpsert
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (r *fakeRemote) Count(_ context.Context, table record.Table, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, row := range r.rows {
		if k.table == table && row.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// seed кладет строку на сервер в обход проверки версии
func (r *fakeRemote) seed(table record.Table, row RemoteRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tick = r.tick.Add(time.Second)
	row.ServerUpdatedAt = r.tick
	r.rows[recordKey{table, row.ID}] = row
}

func (r *fakeRemote) row(table record.Table, id string) RemoteRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[recordKey{table, id}]
}

type memCursors struct {
	mu      stdsync.Mutex
	cursors map[string]Cursor
}

func (c *memCursors) GetCursor(_ context.Context, tenantID string, table record.Table) (Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[tenantID+"/"+string(table)], nil
}

func (c *memCursors) SetCursor(_ context.Context, tenantID string, table record.Table, cur Cursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[tenantID+"/"+string(table)] = cur
	return nil
}

type fakeGuard struct {
	mu     stdsync.Mutex
	user   *tenant.User
	events []tenant.Event
}

func (g *fakeGuard) CurrentUser() (tenant.User, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return tenant.User{}, false
	}
	return *g.user, true
}

func (g *fakeGuard) EnforceDataIsolation(ctx context.Context, resourceTenantID string) bool {
	u, ok := g.CurrentUser()
	if ok && u.TenantID == resourceTenantID {
		return true
	}
	g.Audit(ctx, tenant.Event{Type: tenant.EventDataAccessViolation, Details: map[string]string{"resource_tenant_id": resourceTenantID}})
	return false
}

func (g *fakeGuard) Audit(_ context.Context, e tenant.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, e)
}

func (g *fakeGuard) count(t tenant.EventType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var errTransient = errors.New("network connection reset")
