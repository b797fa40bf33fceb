package tpex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, srv.Client())
}

func TestClient_FetchDaily_OpenAPI(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOpenAPIDaily, r.URL.Path)
		_, _ = w.Write([]byte(`[
		  {"Date":"1131018","SecuritiesCompanyCode":"6488","CompanyName":"環球晶","Close":"452.50","Change":"+7.50","Open":"445.00","High":"455.00","Low":"444.00","TradingShares":"1,234,567","TransactionAmount":"556,000,000","TransactionNumber":"3,210"},
		  {"Date":"1131018","SecuritiesCompanyCode":"8069","CompanyName":"元太","Close":"260.00","Change":"-2.00","Open":"262.00","High":"263.00","Low":"258.00","TradingShares":"5,000,000","TransactionAmount":"1,300,000,000","TransactionNumber":"6,000"},
		  {"Date":"1131018","SecuritiesCompanyCode":"70001U","CompanyName":"權證","Close":"1.00","Change":"0.00","Open":"1.00","High":"1.00","Low":"1.00","TradingShares":"1","TransactionAmount":"1","TransactionNumber":"1"},
		  {"Date":"1131018","SecuritiesCompanyCode":"1240","CompanyName":"茂生農經","Close":"----","Change":"0.00","Open":"----","High":"----","Low":"----","TradingShares":"0","TransactionAmount":"0","TransactionNumber":"0"}
		]`))
	})

	quotes, err := c.FetchDaily(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "6488", quotes[0].Symbol)
	assert.Equal(t, "環球晶", quotes[0].Name)
	assert.Equal(t, entity.MarketTPEx, quotes[0].Market)
	assert.Equal(t, time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), quotes[0].Date)
	assert.InDelta(t, 452.5, quotes[0].Close, 1e-9)
	assert.InDelta(t, 7.5, quotes[0].Change, 1e-9)
	assert.Equal(t, int64(1234567), quotes[0].Volume)
	assert.Equal(t, int64(3210), quotes[0].Transactions)
	assert.InDelta(t, -2.0, quotes[1].Change, 1e-9)
}

func TestClient_FetchDaily_QuoteAAData(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathDailyQuotes, r.URL.Path)
		assert.Equal(t, "113/10/18", r.URL.Query().Get("d"))
		_, _ = w.Write([]byte(`{
		  "reportDate":"113/10/18",
		  "aaData":[
		    ["6488","環球晶","452.50","+7.50","445.00","455.00","444.00","450.12","1,234,567","556,000,000","3,210","452.00","10","452.50","5"],
		    ["short","row"]
		  ]}`))
	})

	quotes, err := c.FetchDaily(context.Background(), time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "6488", quotes[0].Symbol)
	assert.Equal(t, int64(1234567), quotes[0].Volume)
	assert.InDelta(t, 556000000.0, quotes[0].Value, 1e-6)
	assert.Equal(t, time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), quotes[0].Date)
}

func TestClient_FetchDaily_Tables(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
		  "date":"20241018",
		  "tables":[{"title":"上櫃股票行情","fields":["收盤","代號","名稱","漲跌","開盤","最高","最低","成交股數","成交金額(元)","成交筆數"],
		    "data":[["452.50","6488","環球晶","+7.50","445.00","455.00","444.00","1,234,567","556,000,000","3,210"]]}]
		}`))
	})

	quotes, err := c.FetchDaily(context.Background(), time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "6488", quotes[0].Symbol)
	assert.InDelta(t, 452.5, quotes[0].Close, 1e-9)
	assert.Equal(t, int64(1234567), quotes[0].Volume)
}

func TestClient_FetchDaily_UnknownShape(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"iTotalRecords":0}`))
	})

	_, err := c.FetchDaily(context.Background(), time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrScheduleUnavailable)
}

func TestClient_FetchDaily_HTTPError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchDaily(context.Background(), time.Time{})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_FetchMonth_AAData(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathMonth, r.URL.Path)
		assert.Equal(t, "113/10", r.URL.Query().Get("d"))
		assert.Equal(t, "6488", r.URL.Query().Get("stkno"))
		_, _ = w.Write([]byte(`{
		  "stkNo":"6488","stkName":"環球晶",
		  "aaData":[
		    ["113/10/01","1,200","540,000","440.00","452.00","438.00","450.00","10.00","3,000"],
		    ["113/10/02","--","--","--","--","--","--","0.00","--"],
		    ["113/13/03","1,000","450,000","450.00","451.00","449.00","450.00","0.00","2,000"],
		    ["113/10/04","1,500","675,000","450.00","455.00","448.00","452.00","2.00","3,500"]
		  ]}`))
	})

	quotes, err := c.FetchMonth(context.Background(), "6488", time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "環球晶", quotes[0].Name)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), quotes[0].Date)
	assert.Equal(t, int64(1200000), quotes[0].Volume)
	assert.InDelta(t, 540000000.0, quotes[0].Value, 1e-6)
	assert.Equal(t, int64(1500000), quotes[1].Volume)
}

func TestDetectSnapshot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want shape
	}{
		{"openapi", `[{"SecuritiesCompanyCode":"6488"}]`, shapeOpenAPI},
		{"empty array", `[]`, shapeOpenAPI},
		{"array without discriminator", `[{"code":"6488"}]`, shapeUnknown},
		{"tables", `{"tables":[]}`, shapeTables},
		{"aaData", `{"aaData":[["1","2","3","4","5","6","7","8","9","10","11"]]}`, shapeQuoteAA},
		{"aaData too short", `{"aaData":[["1","2","3"]]}`, shapeUnknown},
		{"nothing", `{}`, shapeUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := detectSnapshot(gjson.Parse(tt.body))
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}
