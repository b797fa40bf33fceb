package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock_scanner/internal/feature/symbollist/domain/entity"
	"stock_scanner/internal/feature/symbollist/usecase"
)

// DefaultSectorTTL は業種マッピングキャッシュの既定TTLです。
const DefaultSectorTTL = 7 * 24 * time.Hour

// allSectorsScope は業種一覧のキャッシュスコープです。
const allSectorsScope = "_all"

// CachingSymbolRepository decorates a SymbolRepository with Redis caching of sector lookups.
// Sector membership changes only when the master is re-synced, so entries live for days
// and are invalidated by UpsertBatch.
type CachingSymbolRepository struct {
	inner     usecase.SymbolRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.SymbolRepository = (*CachingSymbolRepository)(nil)

// NewCachingSymbolRepository decorates a SymbolRepository with Redis caching.
// If ttl is 0, it defaults to 7 days. If namespace is empty, it uses "resonance".
func NewCachingSymbolRepository(rdb *redis.Client, ttl time.Duration, inner usecase.SymbolRepository, namespace string) *CachingSymbolRepository {
	if ttl <= 0 {
		ttl = DefaultSectorTTL
	}
	if namespace == "" {
		namespace = "resonance"
	}
	return &CachingSymbolRepository{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

// ListActive is not cached.
func (c *CachingSymbolRepository) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	return c.inner.ListActive(ctx)
}

// ListBySector returns the sector's symbols, checking the cache first.
func (c *CachingSymbolRepository) ListBySector(ctx context.Context, sector string) ([]entity.Symbol, error) {
	return cached(ctx, c, c.cacheKey(sector), func() ([]entity.Symbol, error) {
		return c.inner.ListBySector(ctx, sector)
	})
}

// ListSectors returns the sector names, checking the cache first.
func (c *CachingSymbolRepository) ListSectors(ctx context.Context) ([]string, error) {
	return cached(ctx, c, c.cacheKey(allSectorsScope), func() ([]string, error) {
		return c.inner.ListSectors(ctx)
	})
}

// UpsertBatch writes through to the inner repository and invalidates every sector entry.
func (c *CachingSymbolRepository) UpsertBatch(ctx context.Context, symbols []entity.Symbol) error {
	if err := c.inner.UpsertBatch(ctx, symbols); err != nil {
		return err
	}
	if c.rdb == nil || len(symbols) == 0 {
		return nil
	}
	_ = deleteByPattern(ctx, c.rdb, c.cacheKeyPrefix()+"*") // Best effort: don't fail if cache deletion fails
	return nil
}

// cached implements the read-through path shared by the list methods.
func cached[T any](ctx context.Context, c *CachingSymbolRepository, key string, load func() ([]T, error)) ([]T, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return load()
	}

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database
	out, err := load()
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort); empty results are not cached
	if len(out) > 0 {
		if b, err := json.Marshal(out); err == nil {
			_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
		}
	}
	return out, nil
}

// cacheKey generates "{namespace}:sector:v1:{scope}:latest".
func (c *CachingSymbolRepository) cacheKey(scope string) string {
	return fmt.Sprintf("%s%s:latest", c.cacheKeyPrefix(), safe(scope))
}

// cacheKeyPrefix generates a prefix for invalidating every sector entry.
func (c *CachingSymbolRepository) cacheKeyPrefix() string {
	return fmt.Sprintf("%s:sector:v1:", c.namespace)
}
