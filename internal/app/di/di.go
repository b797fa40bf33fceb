// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"stock_scanner/internal/app/config"
	"stock_scanner/internal/feature/marketdata/adapters/finmind"
	"stock_scanner/internal/feature/marketdata/adapters/tpex"
	"stock_scanner/internal/feature/marketdata/adapters/twse"
	mdusecase "stock_scanner/internal/feature/marketdata/usecase"
	scanusecase "stock_scanner/internal/feature/scanner/usecase"
	symboladapters "stock_scanner/internal/feature/symbollist/adapters"
	"stock_scanner/internal/feature/symbollist/adapters/companyinfo"
	"stock_scanner/internal/feature/symbollist/domain/entity"
	symbolusecase "stock_scanner/internal/feature/symbollist/usecase"
	"stock_scanner/internal/platform/cache"
	"stock_scanner/internal/platform/db"
	infrahttp "stock_scanner/internal/platform/http"
	"stock_scanner/internal/platform/metrics"
	infraredis "stock_scanner/internal/platform/redis"
	"stock_scanner/internal/shared/ratelimiter"
)

// NewUpstreamClient creates the HTTP client shared by every exchange adapter.
// Requests are throttled by the aggregator, not by the client.
func NewUpstreamClient(cfg config.Config) *http.Client {
	return infrahttp.NewHTTPClient(cfg.Aggregator.SourceTimeout)
}

// NewUpstreamLimiter creates the token bucket shared by every upstream request.
func NewUpstreamLimiter(cfg config.Config) ratelimiter.Limiter {
	return ratelimiter.NewTokenBucket(cfg.RequestsPerSecond, cfg.RequestBurst)
}

// NewAggregator wires both exchange feeds, both institutional reports and the optional enrichment API.
func NewAggregator(cfg config.Config, client *http.Client, rec mdusecase.FetchRecorder) *mdusecase.Aggregator {
	twCfg := cfg.TWSE
	if twCfg.Location == nil {
		twCfg.Location = cfg.Aggregator.Location
	}
	tw := twse.NewClient(twCfg, client)
	tp := tpex.NewClient(cfg.TPEx, client)
	fm := finmind.NewClient(cfg.FinMind, client)
	if fm.Enabled() {
		slog.Info("institutional flow enrichment enabled", "base_url", cfg.FinMind.BaseURL)
	}
	return mdusecase.NewAggregator(cfg.Aggregator,
		[]mdusecase.DailySource{tw, tp},
		[]mdusecase.FlowSource{tw, tp},
		fm,
		NewUpstreamLimiter(cfg),
		rec,
	)
}

// OpenRedis connects to Redis. It returns nil when Redis is not configured or unreachable,
// in which case every cache runs in bypass mode.
func OpenRedis(ctx context.Context, cfg config.Config) *redisv9.Client {
	if cfg.Redis.Host == "" {
		slog.Warn("REDIS_HOST is not set. Running without cache.")
		return nil
	}
	rdb, err := infraredis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable. Running without cache.", "error", err)
		return nil
	}
	return rdb
}

// OpenDB opens the symbol master database and migrates its schema.
func OpenDB(cfg config.Config) (*gorm.DB, error) {
	return db.OpenDB(cfg.DB, true, &entity.Symbol{})
}

// NewSymbolRepository returns the gorm repository decorated with the Redis sector cache.
func NewSymbolRepository(cfg config.Config, gdb *gorm.DB, rdb *redisv9.Client) symbolusecase.SymbolRepository {
	return cache.NewCachingSymbolRepository(rdb, cfg.SectorTTL, symboladapters.NewSymbolRepository(gdb), cfg.CacheNamespace)
}

// NewScanner wires the orchestrator. sectors may be nil when no symbol master is available.
func NewScanner(cfg config.Config, md scanusecase.MarketData, rdb *redisv9.Client, sectors scanusecase.SectorDirectory, rec scanusecase.Recorder) *scanusecase.Scanner {
	results := cache.NewAnalysisCache(rdb, cfg.ResultTTL, cfg.CacheNamespace, cfg.Aggregator.Location)
	throttle := ratelimiter.NewFixedDelay(cfg.BatchDelay)
	return scanusecase.NewScanner(cfg.Scanner, md, scanusecase.NewScoringEngine(), results, sectors, throttle, rec)
}

// NewSyncUsecase wires the company-info feeds of both exchanges into the symbol master.
func NewSyncUsecase(cfg config.Config, repo symbolusecase.SymbolRepository) *symbolusecase.SyncUsecase {
	client := infrahttp.NewHTTPClient(cfg.CompanyInfo.Timeout)
	return symbolusecase.NewSyncUsecase(repo,
		ratelimiter.NewWindowLimiter(1, 2*time.Second),
		companyinfo.NewTWSEClient(cfg.CompanyInfo, client),
		companyinfo.NewTPExClient(cfg.CompanyInfo, client),
	)
}

// NewMetrics creates the process metrics registry.
func NewMetrics() *metrics.Registry {
	return metrics.NewRegistry()
}
