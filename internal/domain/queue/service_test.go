package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain/record"
	"bizsync/internal/utils/logger"
	"bizsync/internal/utils/timeutil"
)

// memRepository хранит очередь в памяти и повторяет семантику SQLite-репозитория
type memRepository struct {
	mu  sync.Mutex
	seq int64
	ops map[string]*Operation
}

func newMemRepository() *memRepository {
	return &memRepository{ops: make(map[string]*Operation)}
}

func (r *memRepository) Insert(_ context.Context, op *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	op.Seq = r.seq
	cp := *op
	r.ops[op.ID] = &cp
	return nil
}

func (r *memRepository) Get(_ context.Context, id string) (*Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

func (r *memRepository) ListByStatus(_ context.Context, status Status, limit int) ([]Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Operation
	for _, op := range r.ops {
		if op.Status == status {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepository) SetStatus(_ context.Context, ids []string, status Status, errMsg string, at *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		op, ok := r.ops[id]
		if !ok {
			return ErrOperationNotFound
		}
		op.Status = status
		op.Error = errMsg
		if at != nil {
			t := *at
			op.LastAttempt = &t
		}
	}
	return nil
}

func (r *memRepository) IncrementRetry(_ context.Context, id string, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return ErrOperationNotFound
	}
	op.RetryCount++
	op.Error = errMsg
	op.LastAttempt = &at
	return nil
}

func (r *memRepository) DeleteOlderThan(_ context.Context, cutoff time.Time, status Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, op := range r.ops {
		ts := op.EnqueuedAt
		if op.LastAttempt != nil {
			ts = *op.LastAttempt
		}
		if op.Status == status && ts.Before(cutoff) {
			delete(r.ops, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepository) DeleteCompletedBeyond(_ context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var done []*Operation
	for _, op := range r.ops {
		if op.Status == StatusCompleted {
			done = append(done, op)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Seq > done[j].Seq })
	var n int64
	for i := keep; i < len(done); i++ {
		delete(r.ops, done[i].ID)
		n++
	}
	return n, nil
}

func (r *memRepository) ResetStatus(_ context.Context, from, to Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, op := range r.ops {
		if op.Status == from {
			op.Status = to
			n++
		}
	}
	return n, nil
}

func (r *memRepository) CountByStatus(_ context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Status]int)
	for _, op := range r.ops {
		out[op.Status]++
	}
	return out, nil
}

func (r *memRepository) HasOpen(_ context.Context, table record.Table, recordID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range r.ops {
		if op.Table == table && op.RecordID == recordID && !op.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepository) DeleteTenant(_ context.Context, tenantID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, op := range r.ops {
		if op.TenantID == tenantID {
			delete(r.ops, id)
			n++
		}
	}
	return n, nil
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(t *testing.T) (*Service, *memRepository, *timeutil.FixedClock) {
	t.Helper()
	repo := newMemRepository()
	clock := &timeutil.FixedClock{T: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(repo, directTx{}, clock, logger.Discard()), repo, clock
}

func payload(t *testing.T, table record.Table, id, name string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{"id": id, "name": name})
	require.NoError(t, err)
	b, err := json.Marshal(record.Entry{
		Table:    table,
		ID:       id,
		Envelope: record.Envelope{TenantID: "tenant-a"},
		Data:     data,
	})
	require.NoError(t, err)
	return b
}

func TestEnqueue_DerivesPriority(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, record.TableContacts, KindUpdate, "c1", payload(t, record.TableContacts, "c1", "A"), 0)
	require.NoError(t, err)

	op, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, op.Priority)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, "tenant-a", op.TenantID)
}

func TestEnqueue_Invalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, "campaigns", KindCreate, "x", nil, 0)
	assert.ErrorIs(t, err, record.ErrUnknownTable)

	_, err = svc.Enqueue(ctx, record.TableContacts, "upsert", "x", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.Enqueue(ctx, record.TableContacts, KindCreate, "", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDerivePriority(t *testing.T) {
	tests := []struct {
		table record.Table
		kind  Kind
		want  Priority
	}{
		{record.TableActivityLogs, KindDelete, PriorityCritical},
		{record.TableQuotas, KindUpdate, PriorityCritical},
		{record.TableContacts, KindUpdate, PriorityHigh},
		{record.TableProfiles, KindCreate, PriorityHigh},
		{record.TableAssets, KindCreate, PriorityNormal},
		{record.TablePayments, KindUpdate, PriorityNormal},
		{record.TableActivityLogs, KindCreate, PriorityLow},
		{record.TableSessions, KindCreate, PriorityBackground},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.table, tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePriority(tt.table, tt.kind))
		})
	}
}

func TestDequeueBatch_CriticalsFirst(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	// 120 операций, из них 3 критичные в самом конце очереди
	for i := 0; i < 117; i++ {
		table := record.TableAssets
		if i%2 == 0 {
			table = record.TableActivityLogs
		}
		id := fmt.Sprintf("r%03d", i)
		_, err := svc.Enqueue(ctx, table, KindCreate, id, payload(t, table, id, "x"), 0)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("q%d", i)
		_, err := svc.Enqueue(ctx, record.TableQuotas, KindUpdate, id, payload(t, record.TableQuotas, id, "x"), 0)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	batch, err := svc.DequeueBatch(ctx, 50)
	require.NoError(t, err)
	require.Len(t, batch, 50)

	for i := 0; i < 3; i++ {
		assert.Equal(t, PriorityCritical, batch[i].Priority)
	}
	for i := 3; i < len(batch); i++ {
		assert.Less(t, batch[i].Priority, PriorityCritical)
		assert.False(t, batch[i].EnqueuedAt.Before(batch[i-1].EnqueuedAt) && batch[i].Priority == batch[i-1].Priority,
			"FIFO within a priority band")
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Processing)
	assert.Equal(t, 70, stats.Pending)

	// повторный вызов не выдает операции, которые уже в работе
	next, err := svc.DequeueBatch(ctx, 50)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, op := range batch {
		seen[op.ID] = true
	}
	for _, op := range next {
		assert.False(t, seen[op.ID])
	}
}

func TestDequeueBatch_FoldsPerRecord(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, record.TableContacts, KindCreate, "c1", payload(t, record.TableContacts, "c1", "v1"), 0)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = svc.Enqueue(ctx, record.TableContacts, KindUpdate, "c1", payload(t, record.TableContacts, "c1", "v2"), 0)
	require.NoError(t, err)
	clock.Advance(time.Second)
	last, err := svc.Enqueue(ctx, record.TableContacts, KindUpdate, "c1", payload(t, record.TableContacts, "c1", "v3"), 0)
	require.NoError(t, err)

	batch, err := svc.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	op := batch[0]
	assert.Equal(t, last, op.ID)
	assert.Equal(t, KindCreate, op.Kind)
	assert.Len(t, op.Folded, 2)
	assert.Contains(t, op.Folded, first)

	e, err := op.Entry()
	require.NoError(t, err)
	fields, err := e.Fields()
	require.NoError(t, err)
	assert.Equal(t, "v3", fields["name"])

	require.NoError(t, svc.MarkCompleted(ctx, op))
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Processing)
}

func TestDequeueBatch_DeleteDominates(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, record.TableGroups, KindUpdate, "g1", payload(t, record.TableGroups, "g1", "v1"), 0)
	require.NoError(t, err)
	clock.Advance(time.Second)
	del, err := svc.Enqueue(ctx, record.TableGroups, KindDelete, "g1", payload(t, record.TableGroups, "g1", "v1"), 0)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = svc.Enqueue(ctx, record.TableGroups, KindUpdate, "g1", payload(t, record.TableGroups, "g1", "v2"), 0)
	require.NoError(t, err)

	batch, err := svc.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, KindDelete, batch[0].Kind)
	assert.Equal(t, del, batch[0].ID)
	assert.Equal(t, PriorityCritical, batch[0].Priority)
	assert.Len(t, batch[0].Folded, 2)
}

func TestMarkRetryAndFailed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, record.TableTemplates, KindCreate, "t1", payload(t, record.TableTemplates, "t1", "x"), 0)
	require.NoError(t, err)

	batch, err := svc.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	op := batch[0]

	require.NoError(t, svc.MarkRetry(ctx, &op, fmt.Errorf("timeout")))
	assert.Equal(t, 1, op.RetryCount)
	require.NotNil(t, op.LastAttempt)

	require.NoError(t, svc.MarkFailed(ctx, op, fmt.Errorf("timeout")))
	stored, err := repo.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "timeout", stored.Error)

	// упавшие операции не выдаются повторно
	again, err := svc.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestHousekeep(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < CompletedKeep+5; i++ {
		require.NoError(t, repo.Insert(ctx, &Operation{ID: fmt.Sprintf("done-%d", i), Status: StatusCompleted, EnqueuedAt: clock.Now()}))
	}
	old := clock.Now().Add(-25 * time.Hour)
	require.NoError(t, repo.Insert(ctx, &Operation{ID: "failed-old", Status: StatusFailed, EnqueuedAt: old, LastAttempt: &old}))
	fresh := clock.Now().Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, &Operation{ID: "failed-fresh", Status: StatusFailed, EnqueuedAt: fresh, LastAttempt: &fresh}))

	n, err := svc.Housekeep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	_, err = repo.Get(ctx, "failed-fresh")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "done-0")
	assert.ErrorIs(t, err, ErrOperationNotFound)
	_, err = repo.Get(ctx, fmt.Sprintf("done-%d", CompletedKeep+4))
	assert.NoError(t, err)
}

func TestPurgeOlderThan_RejectsOpenStatuses(t *testing.T) {
	svc, _, clock := newTestService(t)

	_, err := svc.PurgeOlderThan(context.Background(), clock.Now(), StatusPending)
	assert.ErrorIs(t, err, ErrNonTerminalPurge)
}

func TestRecoverInFlight(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, record.TableContacts, KindCreate, "c1", payload(t, record.TableContacts, "c1", "x"), 0)
	require.NoError(t, err)
	_, err = svc.DequeueBatch(ctx, 10)
	require.NoError(t, err)

	n, err := svc.RecoverInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	batch, err := svc.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("critical")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, p)

	_, err = ParsePriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}
