package asset

import (
	"context"
	"errors"
	"time"
)

var ErrEntryNotFound = errors.New("cache entry not found")

// CacheEntry метаданные закэшированного файла ассета
type CacheEntry struct {
	AssetID      string    `json:"asset_id"`
	TenantID     string    `json:"tenant_id"`
	Size         int64     `json:"size"`
	CachedAt     time.Time `json:"cached_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Repository таблица кэша ассетов
type Repository interface {
	Upsert(ctx context.Context, e CacheEntry) error
	Touch(ctx context.Context, assetID string, at time.Time) error
	// ListLRU записи в порядке от давно не использованных к недавним
	ListLRU(ctx context.Context) ([]CacheEntry, error)
	Delete(ctx context.Context, assetIDs []string) error
	TotalSize(ctx context.Context) (int64, error)
	DeleteTenant(ctx context.Context, tenantID string) (int64, error)
}
