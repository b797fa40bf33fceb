package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_scanner/internal/feature/symbollist/domain/entity"
)

// mockSymbolRepository はテスト用のSymbolRepositoryモック実装です。
type mockSymbolRepository struct {
	listActiveFn   func(ctx context.Context) ([]entity.Symbol, error)
	listBySectorFn func(ctx context.Context, sector string) ([]entity.Symbol, error)
	listSectorsFn  func(ctx context.Context) ([]string, error)
	upsertBatchFn  func(ctx context.Context, symbols []entity.Symbol) error
	bySectorCalls  int
}

func (m *mockSymbolRepository) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListBySector(ctx context.Context, sector string) ([]entity.Symbol, error) {
	m.bySectorCalls++
	if m.listBySectorFn != nil {
		return m.listBySectorFn(ctx, sector)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListSectors(ctx context.Context) ([]string, error) {
	if m.listSectorsFn != nil {
		return m.listSectorsFn(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) UpsertBatch(ctx context.Context, symbols []entity.Symbol) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, symbols)
	}
	return nil
}

const semiKey = "resonance:sector:v1:半導體業:latest"

var semis = []entity.Symbol{
	{Code: "2330", Name: "台積電", Market: "TWSE", Sector: "半導體業", IsActive: true, SortKey: 2330},
	{Code: "3105", Name: "穩懋", Market: "TPEX", Sector: "半導體業", IsActive: true, SortKey: 3105},
}

// TestNewCachingSymbolRepository_Defaults は既定のTTLとnamespaceを検証します。
func TestNewCachingSymbolRepository_Defaults(t *testing.T) {
	t.Parallel()

	repo := NewCachingSymbolRepository(nil, 0, &mockSymbolRepository{}, "")
	assert.Equal(t, DefaultSectorTTL, repo.ttl)
	assert.Equal(t, "resonance", repo.namespace)
	assert.Equal(t, semiKey, repo.cacheKey("半導體業"))
	assert.Equal(t, "resonance:sector:v1:a_b:latest", repo.cacheKey("a:b"))
}

// TestCachingSymbolRepository_ListBySector_CacheHit はキャッシュヒット時にDBへ問い合わせないことを検証します。
func TestCachingSymbolRepository_ListBySector_CacheHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	inner := &mockSymbolRepository{}
	repo := NewCachingSymbolRepository(rdb, 0, inner, "")

	b, err := json.Marshal(semis)
	require.NoError(t, err)
	mock.ExpectGet(semiKey).SetVal(string(b))

	got, err := repo.ListBySector(context.Background(), "半導體業")

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "3105", got[1].Code)
	assert.Zero(t, inner.bySectorCalls, "inner repository must not be called on a hit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_ListBySector_CacheMiss はミス時にDBから取得しキャッシュに保存することを検証します。
func TestCachingSymbolRepository_ListBySector_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	inner := &mockSymbolRepository{
		listBySectorFn: func(ctx context.Context, sector string) ([]entity.Symbol, error) { return semis, nil },
	}
	repo := NewCachingSymbolRepository(rdb, 0, inner, "")

	b, err := json.Marshal(semis)
	require.NoError(t, err)
	mock.ExpectGet(semiKey).RedisNil()
	mock.ExpectSet(semiKey, b, DefaultSectorTTL).SetVal("OK")

	got, err := repo.ListBySector(context.Background(), "半導體業")

	require.NoError(t, err)
	assert.Equal(t, semis, got)
	assert.Equal(t, 1, inner.bySectorCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_ListBySector_EmptyNotCached は空結果を保存しないことを検証します。
func TestCachingSymbolRepository_ListBySector_EmptyNotCached(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	repo := NewCachingSymbolRepository(rdb, 0, &mockSymbolRepository{}, "")
	mock.ExpectGet("resonance:sector:v1:宇宙產業:latest").RedisNil()

	got, err := repo.ListBySector(context.Background(), "宇宙產業")

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_ListBySector_Corrupted は壊れたエントリを削除して再取得することを検証します。
func TestCachingSymbolRepository_ListBySector_Corrupted(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	inner := &mockSymbolRepository{
		listBySectorFn: func(ctx context.Context, sector string) ([]entity.Symbol, error) { return semis, nil },
	}
	repo := NewCachingSymbolRepository(rdb, time.Hour, inner, "")

	b, err := json.Marshal(semis)
	require.NoError(t, err)
	mock.ExpectGet(semiKey).SetVal("invalid json")
	mock.ExpectDel(semiKey).SetVal(1)
	mock.ExpectSet(semiKey, b, time.Hour).SetVal("OK")

	got, err := repo.ListBySector(context.Background(), "半導體業")

	require.NoError(t, err)
	assert.Equal(t, semis, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_ListBySector_InnerError はDBエラーがそのまま返ることを検証します。
func TestCachingSymbolRepository_ListBySector_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	boom := errors.New("db down")
	inner := &mockSymbolRepository{
		listBySectorFn: func(ctx context.Context, sector string) ([]entity.Symbol, error) { return nil, boom },
	}
	mock.ExpectGet(semiKey).RedisNil()

	_, err := NewCachingSymbolRepository(rdb, 0, inner, "").ListBySector(context.Background(), "半導體業")

	assert.ErrorIs(t, err, boom)
}

// TestCachingSymbolRepository_NilRedis はRedis未設定時にキャッシュをバイパスすることを検証します。
func TestCachingSymbolRepository_NilRedis(t *testing.T) {
	t.Parallel()

	inner := &mockSymbolRepository{
		listBySectorFn: func(ctx context.Context, sector string) ([]entity.Symbol, error) { return semis, nil },
		listSectorsFn:  func(ctx context.Context) ([]string, error) { return []string{"半導體業"}, nil },
	}
	repo := NewCachingSymbolRepository(nil, 0, inner, "")

	got, err := repo.ListBySector(context.Background(), "半導體業")
	require.NoError(t, err)
	assert.Equal(t, semis, got)

	sectors, err := repo.ListSectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"半導體業"}, sectors)

	assert.NoError(t, repo.UpsertBatch(context.Background(), semis))
}

// TestCachingSymbolRepository_ListSectors は業種一覧が専用キーで保存されることを検証します。
func TestCachingSymbolRepository_ListSectors(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	inner := &mockSymbolRepository{
		listSectorsFn: func(ctx context.Context) ([]string, error) { return []string{"半導體業", "水泥工業"}, nil },
	}
	repo := NewCachingSymbolRepository(rdb, 0, inner, "")

	b, err := json.Marshal([]string{"半導體業", "水泥工業"})
	require.NoError(t, err)
	mock.ExpectGet("resonance:sector:v1:_all:latest").RedisNil()
	mock.ExpectSet("resonance:sector:v1:_all:latest", b, DefaultSectorTTL).SetVal("OK")

	got, err := repo.ListSectors(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"半導體業", "水泥工業"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_UpsertBatch は書き込み後に業種キャッシュが無効化されることを検証します。
func TestCachingSymbolRepository_UpsertBatch(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	repo := NewCachingSymbolRepository(rdb, 0, &mockSymbolRepository{}, "")

	mock.ExpectScan(0, "resonance:sector:v1:*", 200).SetVal([]string{semiKey, "resonance:sector:v1:_all:latest"}, 0)
	mock.ExpectDel(semiKey, "resonance:sector:v1:_all:latest").SetVal(2)

	assert.NoError(t, repo.UpsertBatch(context.Background(), semis))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_UpsertBatch_InnerError はDB失敗時に無効化しないことを検証します。
func TestCachingSymbolRepository_UpsertBatch_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	boom := errors.New("constraint violation")
	repo := NewCachingSymbolRepository(rdb, 0, &mockSymbolRepository{
		upsertBatchFn: func(ctx context.Context, symbols []entity.Symbol) error { return boom },
	}, "")

	assert.ErrorIs(t, repo.UpsertBatch(context.Background(), semis), boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingSymbolRepository_ListActive はListActiveがキャッシュを経由しないことを検証します。
func TestCachingSymbolRepository_ListActive(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	repo := NewCachingSymbolRepository(rdb, 0, &mockSymbolRepository{
		listActiveFn: func(ctx context.Context) ([]entity.Symbol, error) { return semis, nil },
	}, "")

	got, err := repo.ListActive(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
