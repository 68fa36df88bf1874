package sqlite

import (
	"context"
	"fmt"
	"time"

	"bizsync/internal/domain/asset"
)

// AssetCacheRepository метаданные файлового кэша ассетов
type AssetCacheRepository struct {
	st *Storage
}

func NewAssetCacheRepository(st *Storage) *AssetCacheRepository {
	return &AssetCacheRepository{st: st}
}

func (r *AssetCacheRepository) Upsert(ctx context.Context, e asset.CacheEntry) error {
	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO asset_cache (asset_id, tenant_id, size, cached_at, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (asset_id) DO UPDATE SET
			size = excluded.size,
			cached_at = excluded.cached_at,
			last_accessed = excluded.last_accessed`,
		e.AssetID, e.TenantID, e.Size, toNanos(e.CachedAt), toNanos(e.LastAccessed))
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (r *AssetCacheRepository) Touch(ctx context.Context, assetID string, at time.Time) error {
	res, err := r.st.q(ctx).ExecContext(ctx,
		`UPDATE asset_cache SET last_accessed = ? WHERE asset_id = ?`, toNanos(at), assetID)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return asset.ErrEntryNotFound
	}
	return nil
}

func (r *AssetCacheRepository) ListLRU(ctx context.Context) ([]asset.CacheEntry, error) {
	rows, err := r.st.q(ctx).QueryContext(ctx, `
		SELECT asset_id, tenant_id, size, cached_at, last_accessed
		FROM asset_cache
		ORDER BY last_accessed, asset_id`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var out []asset.CacheEntry
	for rows.Next() {
		var (
			e                    asset.CacheEntry
			cachedAt, accessedAt int64
		)
		if err := rows.Scan(&e.AssetID, &e.TenantID, &e.Size, &cachedAt, &accessedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.CachedAt = fromNanos(cachedAt)
		e.LastAccessed = fromNanos(accessedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *AssetCacheRepository) Delete(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	in, args := placeholders(assetIDs)
	if _, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM asset_cache WHERE asset_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

func (r *AssetCacheRepository) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	if err := r.st.q(ctx).QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM asset_cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum cache size: %w", err)
	}
	return total, nil
}

func (r *AssetCacheRepository) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM asset_cache WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("purge tenant cache: %w", err)
	}
	return res.RowsAffected()
}
