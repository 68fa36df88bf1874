package asset

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	"bizsync/internal/utils/timeutil"
)

// Cache учет кэша файлов ассетов с вытеснением по LRU в пределах бюджета
type Cache struct {
	repo   Repository
	budget int64
	clock  timeutil.Clock
	log    *slog.Logger
}

func NewCache(repo Repository, budget int64, clock timeutil.Clock, log *slog.Logger) *Cache {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Cache{
		repo:   repo,
		budget: budget,
		clock:  clock,
		log:    log.With("component", "asset_cache"),
	}
}

// Track регистрирует файл в кэше и сразу приводит кэш к бюджету
func (c *Cache) Track(ctx context.Context, assetID, tenantID string, size int64) ([]string, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid size %d for asset %s", size, assetID)
	}
	now := c.clock.Now()
	err := c.repo.Upsert(ctx, CacheEntry{
		AssetID:      assetID,
		TenantID:     tenantID,
		Size:         size,
		CachedAt:     now,
		LastAccessed: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track asset %s: %w", assetID, err)
	}
	return c.EvictToBudget(ctx)
}

// Touch отмечает обращение к файлу
func (c *Cache) Touch(ctx context.Context, assetID string) error {
	return c.repo.Touch(ctx, assetID, c.clock.Now())
}

// EvictToBudget удаляет давно не использованные записи, пока суммарный размер больше бюджета
func (c *Cache) EvictToBudget(ctx context.Context) ([]string, error) {
	if c.budget <= 0 {
		return nil, nil
	}

	total, err := c.repo.TotalSize(ctx)
	if err != nil {
		return nil, err
	}
	if total <= c.budget {
		return nil, nil
	}

	entries, err := c.repo.ListLRU(ctx)
	if err != nil {
		return nil, err
	}

	var evicted []string
	for _, e := range entries {
		if total <= c.budget {
			break
		}
		evicted = append(evicted, e.AssetID)
		total -= e.Size
	}

	if err := c.repo.Delete(ctx, evicted); err != nil {
		return nil, fmt.Errorf("failed to evict assets: %w", err)
	}
	c.log.Info("Asset cache evicted", "count", len(evicted), "size", total, "budget", c.budget)
	return evicted, nil
}

// Usage занятый объем и бюджет
func (c *Cache) Usage(ctx context.Context) (used, budget int64, err error) {
	used, err = c.repo.TotalSize(ctx)
	return used, c.budget, err
}
