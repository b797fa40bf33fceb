package tpex

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
)

func TestClient_FetchInstitutional_AAData(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathInstitutional, r.URL.Path)
		assert.Equal(t, "113/10/18", r.URL.Query().Get("d"))
		assert.Equal(t, "EW", r.URL.Query().Get("se"))
		_, _ = w.Write([]byte(`{
		  "reportDate":"113/10/18",
		  "aaData":[
		    ["6488","環球晶","1,000","400","600","0","0","0","1,000","400","600","3,000","1,000","2,000","500","700","-200","100","0","100","600","700","-100","2,500"],
		    ["8069","元太","0","2,000","-2,000","0","0","0","0","2,000","-2,000","0","500","-500","0","0","0","0","0","0","0","0","0","-2,500"]
		  ]
		}`))
	})

	got, err := c.FetchInstitutional(context.Background(), time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), map[string]struct{}{"6488": {}})
	require.NoError(t, err)
	require.Len(t, got, 4)

	byClass := map[entity.InvestorClass]entity.InstitutionalFlow{}
	for _, f := range got {
		assert.Equal(t, "6488", f.Symbol)
		assert.Equal(t, time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), f.Date)
		byClass[f.Class] = f
	}
	assert.Equal(t, int64(2000), byClass[entity.InvestorInvestmentTrust].Net())
	assert.Equal(t, int64(600), byClass[entity.InvestorForeign].Net())
	assert.Equal(t, int64(-200), byClass[entity.InvestorDealerSelf].Net())
	assert.Equal(t, int64(100), byClass[entity.InvestorDealerHedge].Net())
}

func TestClient_FetchInstitutional_TablesAllSymbols(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
		  "stat":"ok",
		  "tables":[{
		    "fields":["代號","名稱","外資及陸資(不含外資自營商)-買進股數","外資及陸資(不含外資自營商)-賣出股數","外資及陸資(不含外資自營商)-買賣超股數","投信-買進股數","投信-賣出股數","投信-買賣超股數"],
		    "data":[
		      ["6488","環球晶","1,000","400","600","3,000","1,000","2,000"],
		      ["8069","元太","0","2,000","-2,000","0","500","-500"]
		    ]
		  }]
		}`))
	})

	got, err := c.FetchInstitutional(context.Background(), time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, got, 4)

	var trust8069 entity.InstitutionalFlow
	for _, f := range got {
		if f.Symbol == "8069" && f.Class == entity.InvestorInvestmentTrust {
			trust8069 = f
		}
	}
	assert.Equal(t, int64(-500), trust8069.Net())
}

func TestClient_FetchInstitutional_Holiday(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reportDate":"113/10/19","aaData":[]}`))
	})

	_, err := c.FetchInstitutional(context.Background(), time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC), nil)
	assert.ErrorIs(t, err, domain.ErrScheduleUnavailable)
}

func TestClient_FetchInstitutional_HTTPError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchInstitutional(context.Background(), time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), nil)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
