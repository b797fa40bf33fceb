package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stock_scanner/internal/feature/symbollist/domain/entity"
)

// setupTestDB はテスト用のSQLiteデータベースを準備します。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "symbols.db")), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	err = db.AutoMigrate(&entity.Symbol{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

// seedSymbol はテスト用の銘柄データをデータベースに作成します。
func seedSymbol(t *testing.T, db *gorm.DB, code, name, market, sector string, sortKey int) *entity.Symbol {
	t.Helper()

	symbol := &entity.Symbol{
		Code:     code,
		Name:     name,
		Market:   market,
		Sector:   sector,
		IsActive: true,
		SortKey:  sortKey,
	}
	require.NoError(t, db.Create(symbol).Error, "failed to seed symbol")
	return symbol
}

// deactivate は銘柄のis_activeをfalseに更新します。
// gormはゼロ値のboolをINSERTで省略するため、作成後に更新します。
func deactivate(t *testing.T, db *gorm.DB, symbol *entity.Symbol) {
	t.Helper()
	require.NoError(t, db.Model(symbol).Update("is_active", false).Error)
}

func codes(symbols []entity.Symbol) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, s.Code)
	}
	return out
}

// TestNewSymbolRepository はNewSymbolRepositoryコンストラクタが正しくインスタンスを生成することを検証します。
func TestNewSymbolRepository(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewSymbolRepository(db)

	assert.NotNil(t, repo, "repository should not be nil")
	assert.Equal(t, db, repo.db, "db should be set")
}

// TestSymbolGorm_ListActive はアクティブな銘柄のみがsort_key順に返されることを検証します。
func TestSymbolGorm_ListActive(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedSymbol(t, db, "2454", "聯發科", "TWSE", "半導體業", 2454)
	seedSymbol(t, db, "2330", "台積電", "TWSE", "半導體業", 2330)
	gone := seedSymbol(t, db, "1101", "台泥", "TWSE", "水泥工業", 1101)
	deactivate(t, db, gone)

	got, err := NewSymbolRepository(db).ListActive(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"2330", "2454"}, codes(got))
}

// TestSymbolGorm_ListBySector は業種で絞り込まれることを検証します。
func TestSymbolGorm_ListBySector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sector string
		want   []string
	}{
		{name: "matching sector", sector: "半導體業", want: []string{"2330", "3105"}},
		{name: "other sector", sector: "水泥工業", want: []string{"1101"}},
		{name: "unknown sector", sector: "宇宙產業", want: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			seedSymbol(t, db, "3105", "穩懋", "TPEX", "半導體業", 3105)
			seedSymbol(t, db, "2330", "台積電", "TWSE", "半導體業", 2330)
			seedSymbol(t, db, "1101", "台泥", "TWSE", "水泥工業", 1101)
			gone := seedSymbol(t, db, "2303", "聯電", "TWSE", "半導體業", 2303)
			deactivate(t, db, gone)

			got, err := NewSymbolRepository(db).ListBySector(context.Background(), tt.sector)

			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(got))
		})
	}
}

// TestSymbolGorm_ListSectors は重複のない業種一覧が返されることを検証します。
func TestSymbolGorm_ListSectors(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedSymbol(t, db, "2330", "台積電", "TWSE", "半導體業", 2330)
	seedSymbol(t, db, "3105", "穩懋", "TPEX", "半導體業", 3105)
	seedSymbol(t, db, "1101", "台泥", "TWSE", "水泥工業", 1101)
	seedSymbol(t, db, "9999", "未分類", "TWSE", "", 9999)

	got, err := NewSymbolRepository(db).ListSectors(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"半導體業", "水泥工業"}, got)
}

// TestSymbolGorm_UpsertBatch は挿入と更新の両方が行われることを検証します。
func TestSymbolGorm_UpsertBatch(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedSymbol(t, db, "2330", "台積電", "TWSE", "其他", 2330)
	repo := NewSymbolRepository(db)

	err := repo.UpsertBatch(context.Background(), []entity.Symbol{
		{Code: "2330", Name: "台積電", Market: "TWSE", Sector: "半導體業", IsActive: true, SortKey: 2330},
		{Code: "3105", Name: "穩懋", Market: "TPEX", Sector: "半導體業", IsActive: true, SortKey: 3105},
	})
	require.NoError(t, err)

	var all []entity.Symbol
	require.NoError(t, db.Order("code").Find(&all).Error)
	require.Len(t, all, 2)
	assert.Equal(t, "半導體業", all[0].Sector, "existing row should be updated")
	assert.Equal(t, "TPEX", all[1].Market)
}

// TestSymbolGorm_UpsertBatch_Empty は空入力でDBに触れないことを検証します。
func TestSymbolGorm_UpsertBatch_Empty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	err := NewSymbolRepository(db).UpsertBatch(context.Background(), nil)
	assert.NoError(t, err)
}
