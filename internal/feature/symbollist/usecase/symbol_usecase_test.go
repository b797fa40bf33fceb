package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_scanner/internal/feature/symbollist/domain/entity"
)

// mockSymbolRepository はSymbolRepositoryインターフェースのモック実装です。
type mockSymbolRepository struct {
	ListActiveFunc   func(ctx context.Context) ([]entity.Symbol, error)
	ListBySectorFunc func(ctx context.Context, sector string) ([]entity.Symbol, error)
	ListSectorsFunc  func(ctx context.Context) ([]string, error)
	UpsertBatchFunc  func(ctx context.Context, symbols []entity.Symbol) error
	upserted         []entity.Symbol
}

func (m *mockSymbolRepository) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListBySector(ctx context.Context, sector string) ([]entity.Symbol, error) {
	if m.ListBySectorFunc != nil {
		return m.ListBySectorFunc(ctx, sector)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListSectors(ctx context.Context) ([]string, error) {
	if m.ListSectorsFunc != nil {
		return m.ListSectorsFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) UpsertBatch(ctx context.Context, symbols []entity.Symbol) error {
	m.upserted = append(m.upserted, symbols...)
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, symbols)
	}
	return nil
}

// TestSymbolUsecase_ListActiveSymbols は業種指定の有無でリポジトリの呼び分けが行われることを検証します。
func TestSymbolUsecase_ListActiveSymbols(t *testing.T) {
	t.Parallel()

	all := []entity.Symbol{{Code: "2330"}, {Code: "1101"}}
	semis := []entity.Symbol{{Code: "2330"}}

	tests := []struct {
		name   string
		sector string
		want   []entity.Symbol
	}{
		{name: "no sector lists everything", sector: "", want: all},
		{name: "blank sector lists everything", sector: "  ", want: all},
		{name: "sector narrows the list", sector: " 半導體業 ", want: semis},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &mockSymbolRepository{
				ListActiveFunc: func(ctx context.Context) ([]entity.Symbol, error) { return all, nil },
				ListBySectorFunc: func(ctx context.Context, sector string) ([]entity.Symbol, error) {
					assert.Equal(t, "半導體業", sector)
					return semis, nil
				},
			}
			got, err := NewSymbolUsecase(repo).ListActiveSymbols(context.Background(), tt.sector)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSymbolUsecase_CodesInSector はコードのみが抽出されることを検証します。
func TestSymbolUsecase_CodesInSector(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		repo := &mockSymbolRepository{
			ListBySectorFunc: func(ctx context.Context, sector string) ([]entity.Symbol, error) {
				return []entity.Symbol{{Code: "2330"}, {Code: "3105"}}, nil
			},
		}
		got, err := NewSymbolUsecase(repo).CodesInSector(context.Background(), "半導體業")
		require.NoError(t, err)
		assert.Equal(t, []string{"2330", "3105"}, got)
	})

	t.Run("unknown sector is empty", func(t *testing.T) {
		t.Parallel()
		got, err := NewSymbolUsecase(&mockSymbolRepository{}).CodesInSector(context.Background(), "宇宙產業")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("repository error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("db down")
		repo := &mockSymbolRepository{
			ListBySectorFunc: func(ctx context.Context, sector string) ([]entity.Symbol, error) { return nil, boom },
		}
		_, err := NewSymbolUsecase(repo).CodesInSector(context.Background(), "半導體業")
		assert.ErrorIs(t, err, boom)
	})
}

// TestSymbolUsecase_ListSectors はリポジトリの結果がそのまま返されることを検証します。
func TestSymbolUsecase_ListSectors(t *testing.T) {
	t.Parallel()

	repo := &mockSymbolRepository{
		ListSectorsFunc: func(ctx context.Context) ([]string, error) { return []string{"半導體業"}, nil },
	}
	got, err := NewSymbolUsecase(repo).ListSectors(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"半導體業"}, got)
}
