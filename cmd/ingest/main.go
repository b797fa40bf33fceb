package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"stock_scanner/internal/app/config"
	"stock_scanner/internal/app/di"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	gdb, err := di.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	rdb := di.OpenRedis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	uc := di.NewSyncUsecase(cfg, di.NewSymbolRepository(cfg, gdb, rdb))
	synced, err := uc.SyncAll(ctx)
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("ingest ok", "synced", synced)
}
