package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stock_scanner/internal/feature/symbollist/domain"
	"stock_scanner/internal/feature/symbollist/domain/entity"
	"stock_scanner/internal/shared/ratelimiter"
)

// CompanySource は取引所の会社基本資料フィードです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type CompanySource interface {
	Market() string
	FetchCompanies(ctx context.Context) ([]entity.Symbol, error)
}

// SyncUsecase は会社情報フィードから銘柄・業種マスタを同期します。
type SyncUsecase struct {
	sources []CompanySource
	repo    SymbolRepository
	limiter ratelimiter.Limiter
}

// NewSyncUsecase は新しい SyncUsecase を作成します。limiter が nil の場合は待機しません。
func NewSyncUsecase(repo SymbolRepository, limiter ratelimiter.Limiter, sources ...CompanySource) *SyncUsecase {
	if limiter == nil {
		limiter = ratelimiter.Unlimited{}
	}
	return &SyncUsecase{sources: sources, repo: repo, limiter: limiter}
}

// SyncAll は全ソースを順に取得し、マスタへ upsert します。
// 戻り値は市場ごとの同期件数です。1つのソースが失敗しても処理を続け、
// すべてのソースが失敗した場合のみエラーを返します。
func (u *SyncUsecase) SyncAll(ctx context.Context) (map[string]int, error) {
	synced := make(map[string]int, len(u.sources))
	var errs []error

	for _, src := range u.sources {
		if err := u.limiter.Wait(ctx); err != nil {
			return synced, err
		}
		n, err := u.syncOne(ctx, src)
		if err != nil {
			slog.Error("failed to sync symbols", "market", src.Market(), "error", err)
			errs = append(errs, err)
			continue
		}
		synced[src.Market()] = n
		slog.Info("symbols synced", "market", src.Market(), "count", n)
	}

	if len(u.sources) > 0 && len(errs) == len(u.sources) {
		return synced, fmt.Errorf("%w: %w", domain.ErrSyncFailed, errors.Join(errs...))
	}
	return synced, nil
}

func (u *SyncUsecase) syncOne(ctx context.Context, src CompanySource) (int, error) {
	symbols, err := src.FetchCompanies(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Market(), err)
	}
	if len(symbols) == 0 {
		return 0, fmt.Errorf("%s: %w", src.Market(), domain.ErrNoCompanies)
	}
	for i := range symbols {
		symbols[i].Market = src.Market()
		symbols[i].IsActive = true
	}
	if err := u.repo.UpsertBatch(ctx, symbols); err != nil {
		return 0, fmt.Errorf("%s: upsert: %w", src.Market(), err)
	}
	return len(symbols), nil
}
