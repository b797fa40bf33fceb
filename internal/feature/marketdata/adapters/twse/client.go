package twse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/feature/marketdata/normalize"
)

const (
	pathDaily         = "/exchangeReport/MI_INDEX"
	pathMonth         = "/exchangeReport/STOCK_DAY"
	pathInstitutional = "/fund/T86"

	dateParamLayout = "20060102"
)

// Client は TWSE の日次スナップショット・月次履歴・三大法人売買を取得します。
type Client struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewClient は指定された設定とHTTPクライアントでClientを生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client, now: time.Now}
}

// Market returns the source identifier.
func (c *Client) Market() entity.Market {
	return entity.MarketTWSE
}

// FetchDaily は指定日の全銘柄終値表（MI_INDEX）を取得します。
// date がゼロ値なら台北時間の当日から遡り、終値表が公開されている直近の取引日を返します。
func (c *Client) FetchDaily(ctx context.Context, date time.Time) ([]entity.Quote, error) {
	if date.IsZero() {
		return c.latestDaily(ctx)
	}
	return c.fetchDaily(ctx, date)
}

// latestDaily は土日を飛ばしながら Lookback 暦日まで遡ります。休場日・公開前は次の日を試し、
// それ以外の失敗はそのまま返します。
func (c *Client) latestDaily(ctx context.Context) ([]entity.Quote, error) {
	lookback := c.cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	today := truncateDay(c.now().In(c.cfg.location()))

	var lastErr error
	for i := 0; i < lookback; i++ {
		day := today.AddDate(0, 0, -i)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		quotes, err := c.fetchDaily(ctx, day)
		if err == nil {
			if i > 0 {
				slog.Debug("twse: using latest published session", "date", day.Format(time.DateOnly))
			}
			return quotes, nil
		}
		if !errors.Is(err, domain.ErrScheduleUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: twse no trading day in the last %d days", domain.ErrScheduleUnavailable, lookback)
	}
	return nil, lastErr
}

func (c *Client) fetchDaily(ctx context.Context, date time.Time) ([]entity.Quote, error) {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", date.Format(dateParamLayout))
	q.Set("type", "ALLBUT0999")

	body, err := c.get(ctx, pathDaily, q)
	if err != nil {
		return nil, err
	}
	if !normalize.StatOK(body) {
		return nil, fmt.Errorf("%w: twse %s stat=%q", domain.ErrScheduleUnavailable, date.Format(time.DateOnly), gjson.GetBytes(body, "stat").String())
	}

	table, h, err := normalize.LocateTable(normalize.TablesFromJSON(body), normalize.ColSymbol, normalize.ColClose)
	if err != nil {
		return nil, err
	}

	rc := normalize.RowContext{Market: entity.MarketTWSE, Date: truncateDay(date)}
	if d, err := normalize.ParseDate(gjson.GetBytes(body, "date").String()); err == nil {
		rc.Date = d
	}
	return collect(table.Rows, h, rc), nil
}

// FetchMonth は1銘柄の月次日足（STOCK_DAY）を取得します。
func (c *Client) FetchMonth(ctx context.Context, symbol string, month time.Time) ([]entity.Quote, error) {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC).Format(dateParamLayout))
	q.Set("stockNo", symbol)

	body, err := c.get(ctx, pathMonth, q)
	if err != nil {
		return nil, err
	}
	if !normalize.StatOK(body) {
		return nil, fmt.Errorf("%w: twse %s %s", domain.ErrScheduleUnavailable, symbol, normalize.ROCMonth(month))
	}

	table, h, err := normalize.LocateTable(normalize.TablesFromJSON(body), normalize.ColDate, normalize.ColClose)
	if err != nil {
		return nil, err
	}
	rc := normalize.RowContext{
		Market: entity.MarketTWSE,
		Symbol: symbol,
		Name:   nameFromTitle(table.Title, symbol),
	}
	return collect(table.Rows, h, rc), nil
}

// investorColumns は T86 の投資家区分ごとの買い/売り列の見出し候補です。
var investorColumns = []struct {
	class entity.InvestorClass
	buy   []string
	sell  []string
}{
	{entity.InvestorForeign, []string{"外陸資買進股數", "外資買進股數"}, []string{"外陸資賣出股數", "外資賣出股數"}},
	{entity.InvestorInvestmentTrust, []string{"投信買進股數"}, []string{"投信賣出股數"}},
	{entity.InvestorDealerSelf, []string{"自營商買進股數(自行買賣)"}, []string{"自營商賣出股數(自行買賣)"}},
	{entity.InvestorDealerHedge, []string{"自營商買進股數(避險)"}, []string{"自營商賣出股數(避險)"}},
}

// FetchInstitutional は指定日の三大法人売買超（T86）を取得し、symbols に含まれる銘柄だけを返します。
// symbols が空なら全銘柄を返します。
func (c *Client) FetchInstitutional(ctx context.Context, date time.Time, symbols map[string]struct{}) ([]entity.InstitutionalFlow, error) {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", date.Format(dateParamLayout))
	q.Set("selectType", "ALLBUT0999")

	body, err := c.get(ctx, pathInstitutional, q)
	if err != nil {
		return nil, err
	}
	if !normalize.StatOK(body) {
		return nil, fmt.Errorf("%w: twse T86 %s", domain.ErrScheduleUnavailable, date.Format(time.DateOnly))
	}

	table, h, err := normalize.LocateTable(normalize.TablesFromJSON(body), normalize.ColSymbol)
	if err != nil {
		return nil, err
	}

	type cols struct {
		class     entity.InvestorClass
		buy, sell int
	}
	var resolved []cols
	for _, ic := range investorColumns {
		b := normalize.FindColumn(table.Fields, ic.buy...)
		s := normalize.FindColumn(table.Fields, ic.sell...)
		if b >= 0 && s >= 0 {
			resolved = append(resolved, cols{ic.class, b, s})
		}
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: twse T86 has no investor columns", domain.ErrScheduleUnavailable)
	}

	day := truncateDay(date)
	var out []entity.InstitutionalFlow
	for _, row := range table.Rows {
		sym := h.Cell(row, normalize.ColSymbol)
		if len(symbols) > 0 {
			if _, ok := symbols[sym]; !ok {
				continue
			}
		}
		for _, rc := range resolved {
			if rc.buy >= len(row) || rc.sell >= len(row) {
				continue
			}
			buy, errB := normalize.ParseInt(row[rc.buy])
			sell, errS := normalize.ParseInt(row[rc.sell])
			if errB != nil || errS != nil {
				slog.Debug("twse: skip malformed T86 row", "symbol", sym, "class", rc.class)
				continue
			}
			out = append(out, entity.InstitutionalFlow{Symbol: sym, Date: day, Buy: buy, Sell: sell, Class: rc.class})
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: twse %s: %w", domain.ErrUpstreamUnavailable, path, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: twse http %d", domain.ErrUpstreamUnavailable, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: twse read body: %w", domain.ErrUpstreamUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: twse %s returned non-JSON body", domain.ErrUpstreamUnavailable, path)
	}
	return body, nil
}

// collect normalizes rows, dropping malformed records and non-common-stock ids.
func collect(rows [][]string, h normalize.Header, rc normalize.RowContext) []entity.Quote {
	out := make([]entity.Quote, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		q, err := normalize.QuoteFromRow(h, row, rc)
		if err != nil {
			dropped++
			continue
		}
		if !normalize.Keep(q) {
			continue
		}
		out = append(out, normalize.FillRange(q))
	}
	if dropped > 0 {
		slog.Debug("twse: dropped malformed rows", "count", dropped, "symbol", rc.Symbol)
	}
	return out
}

// nameFromTitle は "113年10月 2330 台積電           各日成交資訊" のような表題から銘柄名を取り出します。
func nameFromTitle(title, symbol string) string {
	fields := strings.Fields(title)
	for i, f := range fields {
		if f == symbol && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
