// Package cache provides Redis-backed caches for scan results and repository decorators.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock_scanner/internal/feature/scanner/domain/entity"
	"stock_scanner/internal/feature/scanner/usecase"
)

// DefaultResultTTL は評価結果キャッシュの既定TTLです。
const DefaultResultTTL = 12 * time.Hour

// AnalysisCache は銘柄×営業日単位で深層評価の結果をRedisに保存します。
// rdb が nil の場合は常にミスとして振る舞います。
type AnalysisCache struct {
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	loc       *time.Location
	now       func() time.Time
}

var _ usecase.ResultCache = (*AnalysisCache)(nil)

// NewAnalysisCache は AnalysisCache を生成します。
// ttl が0以下の場合は12時間、namespace が空の場合は "resonance" を使用します。
func NewAnalysisCache(rdb *redis.Client, ttl time.Duration, namespace string, loc *time.Location) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	if namespace == "" {
		namespace = "resonance"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AnalysisCache{rdb: rdb, ttl: ttl, namespace: namespace, loc: loc, now: time.Now}
}

// Get はキャッシュ済みの結果を返します。ミスの場合は (nil, nil) を返します。
func (c *AnalysisCache) Get(ctx context.Context, symbol string, day time.Time) (*entity.AnalysisResult, error) {
	if c.rdb == nil {
		return nil, nil
	}
	key := c.key(symbol, day)

	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var out entity.AnalysisResult
	if err := json.Unmarshal(b, &out); err != nil || out.Symbol == "" {
		// 壊れたエントリは削除してミス扱い
		_ = c.rdb.Del(ctx, key).Err()
		return nil, nil
	}
	return &out, nil
}

// Set は結果を保存します。TTLは次の開場時刻を超えません。
func (c *AnalysisCache) Set(ctx context.Context, symbol string, day time.Time, r entity.AnalysisResult) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", symbol, err)
	}
	key := c.key(symbol, day)
	if err := c.rdb.Set(ctx, key, b, c.expiry()).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate は指定銘柄のキャッシュをすべて削除します。
func (c *AnalysisCache) Invalidate(ctx context.Context, symbol string) error {
	if c.rdb == nil {
		return nil
	}
	return deleteByPattern(ctx, c.rdb, fmt.Sprintf("%s:expert:v1:%s:*", c.namespace, safe(symbol)))
}

func (c *AnalysisCache) expiry() time.Duration {
	ttl := c.ttl
	if until := TimeUntilNextSession(c.now(), c.loc); until < ttl {
		ttl = until
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// key は "resonance:expert:v1:{symbol}:{YYYY-MM-DD}" 形式のキーを返します。
func (c *AnalysisCache) key(symbol string, day time.Time) string {
	return fmt.Sprintf("%s:expert:v1:%s:%s", c.namespace, safe(symbol), day.Format("2006-01-02"))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func deleteByPattern(ctx context.Context, rdb *redis.Client, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}
