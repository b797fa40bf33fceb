package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock_scanner/internal/app/config"
	"stock_scanner/internal/app/di"
	"stock_scanner/internal/app/router"
	scanhandler "stock_scanner/internal/feature/scanner/transport/handler"
	symbollisthandler "stock_scanner/internal/feature/symbollist/transport/handler"
	symbolusecase "stock_scanner/internal/feature/symbollist/usecase"
	"stock_scanner/internal/platform/http/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis（未設定・接続不可ならキャッシュなしで動作）
	rdb := di.OpenRedis(ctx, cfg)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	// DB
	gdb, err := di.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Repository / Usecase
	reg := di.NewMetrics()
	agg := di.NewAggregator(cfg, di.NewUpstreamClient(cfg), reg)
	symbolUC := symbolusecase.NewSymbolUsecase(di.NewSymbolRepository(cfg, gdb, rdb))
	scanner := di.NewScanner(cfg, agg, rdb, symbolUC, reg)

	checks := map[string]handler.Check{
		"db": func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// JWT_SECRETチェック（開発中の注意喚起）
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set. Protected routes will answer 500.")
	}

	// ルータ生成
	r := router.NewRouter(router.Deps{
		Scan:      scanhandler.NewScanHandler(scanner),
		Symbol:    symbollisthandler.NewSymbolHandler(symbolUC),
		Metrics:   reg,
		JWTSecret: cfg.JWTSecret,
		Checks:    checks,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
