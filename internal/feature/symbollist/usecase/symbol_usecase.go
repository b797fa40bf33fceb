// Package usecase implements the business logic for the symbol/sector master.
package usecase

import (
	"context"
	"strings"

	"stock_scanner/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the persistence layer for the symbol/sector master.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	ListBySector(ctx context.Context, sector string) ([]entity.Symbol, error)
	ListSectors(ctx context.Context) ([]string, error)
	UpsertBatch(ctx context.Context, symbols []entity.Symbol) error
}

// SymbolUsecase provides read access to the symbol/sector master.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns active symbols, restricted to sector when it is non-empty.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context, sector string) ([]entity.Symbol, error) {
	sector = strings.TrimSpace(sector)
	if sector == "" {
		return u.repo.ListActive(ctx)
	}
	return u.repo.ListBySector(ctx, sector)
}

// ListSectors returns every sector that has at least one active symbol.
func (u *SymbolUsecase) ListSectors(ctx context.Context) ([]string, error) {
	return u.repo.ListSectors(ctx)
}

// CodesInSector returns the codes of the active symbols in sector.
// An unknown sector yields an empty slice.
func (u *SymbolUsecase) CodesInSector(ctx context.Context, sector string) ([]string, error) {
	symbols, err := u.repo.ListBySector(ctx, strings.TrimSpace(sector))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, s.Code)
	}
	return out, nil
}
