package asset

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/utils/logger"
	"bizsync/internal/utils/timeutil"
)

type memRepo struct {
	rows map[string]CacheEntry
}

func (m *memRepo) Upsert(_ context.Context, e CacheEntry) error {
	m.rows[e.AssetID] = e
	return nil
}

func (m *memRepo) Touch(_ context.Context, id string, at time.Time) error {
	e, ok := m.rows[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.LastAccessed = at
	m.rows[id] = e
	return nil
}

func (m *memRepo) ListLRU(context.Context) ([]CacheEntry, error) {
	out := make([]CacheEntry, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed.Before(out[j].LastAccessed) })
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.rows, id)
	}
	return nil
}

func (m *memRepo) TotalSize(context.Context) (int64, error) {
	var total int64
	for _, e := range m.rows {
		total += e.Size
	}
	return total, nil
}

func (m *memRepo) DeleteTenant(context.Context, string) (int64, error) { return 0, nil }

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	repo := &memRepo{rows: make(map[string]CacheEntry)}
	clock := &timeutil.FixedClock{T: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(repo, 100, clock, logger.Discard())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		evicted, err := c.Track(ctx, id, "t1", 30)
		require.NoError(t, err)
		assert.Empty(t, evicted)
		clock.Advance(time.Minute)
	}

	require.NoError(t, c.Touch(ctx, "a"))
	clock.Advance(time.Minute)

	evicted, err := c.Track(ctx, "d", "t1", 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, evicted)

	used, budget, err := c.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), used)
	assert.Equal(t, int64(100), budget)

	assert.ErrorIs(t, c.Touch(ctx, "b"), ErrEntryNotFound)
}

func TestCache_OversizedEntryEvictsEverything(t *testing.T) {
	repo := &memRepo{rows: make(map[string]CacheEntry)}
	clock := &timeutil.FixedClock{T: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(repo, 50, clock, logger.Discard())
	ctx := context.Background()

	_, err := c.Track(ctx, "a", "t1", 20)
	require.NoError(t, err)
	clock.Advance(time.Second)

	evicted, err := c.Track(ctx, "big", "t1", 80)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "big"}, evicted)
	assert.Empty(t, repo.rows)
}
