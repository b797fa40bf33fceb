package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
)

func TestQuoteFromRow_Snapshot(t *testing.T) {
	t.Parallel()

	tables := TablesFromJSON([]byte(multiTablePayload))
	table, h, err := LocateTable(tables, ColSymbol, ColClose)
	require.NoError(t, err)

	date := time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)
	q, err := QuoteFromRow(h, table.Rows[0], RowContext{Market: entity.MarketTWSE, Date: date})
	require.NoError(t, err)

	assert.Equal(t, "2330", q.Symbol)
	assert.Equal(t, "台積電", q.Name)
	assert.Equal(t, entity.MarketTWSE, q.Market)
	assert.Equal(t, date, q.Date)
	assert.Equal(t, 1035.0, q.Close)
	assert.Equal(t, 10.0, q.Change)
	assert.Equal(t, int64(30123456), q.Volume)
	assert.Equal(t, int64(45678), q.Transactions)
	assert.Equal(t, 31e9, q.Value)
	assert.True(t, Keep(q))
}

// TestQuoteFromRow_DownSign は漲跌(+/-) 列の符号が変化幅に反映されることを検証します。
func TestQuoteFromRow_DownSign(t *testing.T) {
	t.Parallel()

	h := ResolveHeader([]string{"證券代號", "收盤價", "漲跌(+/-)", "漲跌價差"})
	q, err := QuoteFromRow(h, []string{"1101", "40.00", "<p style= color:green>-</p>", "0.50"}, RowContext{})
	require.NoError(t, err)
	assert.Equal(t, -0.5, q.Change)
}

// TestQuoteFromRow_ThousandUnits は仟股・仟元単位の列が株数・金額に換算されることを検証します。
func TestQuoteFromRow_ThousandUnits(t *testing.T) {
	t.Parallel()

	h := ResolveHeader([]string{"日期", "成交仟股", "成交仟元", "開盤", "最高", "最低", "收盤", "漲跌", "筆數"})
	row := []string{"113/10/01", "1,234", "56,789", "100.0", "101.0", "99.0", "100.5", "+0.5", "321"}
	q, err := QuoteFromRow(h, row, RowContext{Market: entity.MarketTPEx, Symbol: "6488"})
	require.NoError(t, err)

	assert.Equal(t, "6488", q.Symbol)
	assert.Equal(t, "2024-10-01", q.DateKey())
	assert.Equal(t, int64(1234000), q.Volume)
	assert.Equal(t, 56789000.0, q.Value)
	assert.Equal(t, 0.5, q.Change)
}

// TestQuoteFromRow_Malformed は不正な値が RecordError(ErrMalformedRecord) になることを検証します。
func TestQuoteFromRow_Malformed(t *testing.T) {
	t.Parallel()

	h := ResolveHeader([]string{"日期", "證券代號", "收盤價"})

	_, err := QuoteFromRow(h, []string{"113/10/01", "2330", "abc"}, RowContext{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
	var re *domain.RecordError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "close", re.Field)

	_, err = QuoteFromRow(h, []string{"113/99/01", "2330", "10"}, RowContext{})
	assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
	assert.True(t, errors.Is(err, domain.ErrUnrecognizedDateFormat))
}

// TestKeep はワラント等の長いコードと終値0のレコードを落とすことを検証します。
func TestKeep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		q    entity.Quote
		want bool
	}{
		{"common stock", entity.Quote{Symbol: "2330", Close: 10}, true},
		{"etf code is kept", entity.Quote{Symbol: "0050", Close: 150}, true},
		{"warrant", entity.Quote{Symbol: "03001P", Close: 1}, false},
		{"zero close", entity.Quote{Symbol: "2330", Close: 0}, false},
		{"negative volume", entity.Quote{Symbol: "2330", Close: 10, Volume: -1}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Keep(tt.q))
		})
	}
}

func TestFillRange(t *testing.T) {
	t.Parallel()

	q := FillRange(entity.Quote{Close: 10})
	assert.Equal(t, 10.0, q.Open)
	assert.Equal(t, 10.0, q.High)
	assert.Equal(t, 10.0, q.Low)
}
