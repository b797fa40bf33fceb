// Package adapters はsymbollistフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_scanner/internal/feature/symbollist/domain/entity"
	"stock_scanner/internal/feature/symbollist/usecase"
)

// symbolGorm はSymbolRepositoryインターフェースのgorm実装です。
type symbolGorm struct {
	db *gorm.DB
}

var _ usecase.SymbolRepository = (*symbolGorm)(nil)

// NewSymbolRepository は指定されたDB接続でsymbolGormリポジトリの新しいインスタンスを生成します。
func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

// ListActive はsort_key順にすべてのアクティブな銘柄を返します。
func (r *symbolGorm) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Order("code ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListBySector は指定業種に属するアクティブな銘柄をsort_key順に返します。
func (r *symbolGorm) ListBySector(ctx context.Context, sector string) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND sector = ?", true, sector).
		Order("sort_key ASC").
		Order("code ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListSectors はアクティブな銘柄が存在する業種名を昇順で返します。
func (r *symbolGorm) ListSectors(ctx context.Context) ([]string, error) {
	var sectors []string
	if err := r.db.WithContext(ctx).
		Model(&entity.Symbol{}).
		Where("is_active = ? AND sector <> ?", true, "").
		Distinct("sector").
		Order("sector ASC").
		Pluck("sector", &sectors).Error; err != nil {
		return nil, err
	}
	return sectors, nil
}

// UpsertBatch はコードをキーに銘柄を挿入または更新します。
func (r *symbolGorm) UpsertBatch(ctx context.Context, symbols []entity.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "market", "sector", "is_active", "sort_key", "updated_at"}),
	}).Create(&symbols).Error
}
