package di

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stock_scanner/internal/app/config"
	"stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/feature/marketdata/normalize"
	mdusecase "stock_scanner/internal/feature/marketdata/usecase"
)

type fetchCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (f *fetchCounter) ObserveFetch(source, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[source+"/"+outcome]++
}

func (f *fetchCounter) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[key]
}

// twseStub は STOCK_DAY と T86 に応答する TWSE のスタブです。
func twseStub(t *testing.T, symbols []string, t86Calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day, err := time.Parse("20060102", r.URL.Query().Get("date"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/exchangeReport/STOCK_DAY":
			var rows []string
			for d := day; d.Month() == day.Month(); d = d.AddDate(0, 0, 1) {
				if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
					continue
				}
				rows = append(rows, fmt.Sprintf(`["%s","1,000,000","50,000,000","50.00","51.00","49.00","50.50","+0.50","1,000"]`, normalize.ROCDate(d)))
			}
			_, _ = fmt.Fprintf(w, `{"stat":"OK","title":"%s","fields":["日期","成交股數","成交金額","開盤價","最高價","最低價","收盤價","漲跌價差","成交筆數"],"data":[%s]}`,
				r.URL.Query().Get("stockNo"), strings.Join(rows, ","))
		case "/fund/T86":
			t86Calls.Add(1)
			rows := make([]string, 0, len(symbols))
			for _, s := range symbols {
				rows = append(rows, fmt.Sprintf(`["%s","name","3,000","1,000","2,000"]`, s))
			}
			_, _ = fmt.Fprintf(w, `{"stat":"OK","fields":["證券代號","證券名稱","投信買進股數","投信賣出股數","投信買賣超股數"],"data":[%s]}`, strings.Join(rows, ","))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// 既定設定のスロットルで1チャンク分の銘柄を同時に解析しても、
// 自前の待ち時間でタイムアウトやブレーカー開放が起きず、法人売買が欠けないこと
func TestNewAggregator_DefaultThrottleServesFullChunk(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the production request rate")
	}
	t.Parallel()

	cfg := config.Default()
	symbols := make([]string, cfg.Scanner.BatchSize)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("%04d", 1101+i)
	}
	var t86Calls atomic.Int32
	srv := twseStub(t, symbols, &t86Calls)
	cfg.TWSE.BaseURL = srv.URL
	cfg.TPEx.BaseURL = srv.URL
	cfg.FinMind.Token = ""

	rec := &fetchCounter{outcomes: map[string]int{}}
	agg := NewAggregator(cfg, NewUpstreamClient(cfg), rec)

	var dates []time.Time
	for d := agg.Today().AddDate(0, 0, -1); len(dates) < cfg.Scanner.FlowDays; d = d.AddDate(0, 0, -1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d)
		}
	}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.FetchHistory(context.Background(), sym, entity.MarketTWSE, cfg.Scanner.DeepDays)
			assert.NoError(t, err, sym)
			flows, err := agg.FetchInstitutional(context.Background(), sym, entity.MarketTWSE, dates)
			assert.NoError(t, err, sym)
			assert.Len(t, flows, len(dates), sym)
		}()
	}
	wg.Wait()

	flowSource := mdusecase.FlowBreaker(entity.MarketTWSE)
	assert.Zero(t, rec.count(flowSource+"/"+mdusecase.OutcomeBreakerOpen))
	assert.Zero(t, rec.count(flowSource+"/"+mdusecase.OutcomeError))
	assert.Zero(t, rec.count(string(entity.MarketTWSE)+"/"+mdusecase.OutcomeError))
	assert.Equal(t, int32(len(dates)), t86Calls.Load())
}
