package tpex

import (
	"context"
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
	pathOpenAPIDaily = "/openapi/v1/tpex_mainboard_daily_close_quotes"
	pathDailyQuotes  = "/web/stock/aftertrading/daily_close_quotes/stk_quote_result.php"
	pathMonth        = "/web/stock/aftertrading/daily_trading_info/st43_result.php"
)

// Client は TPEx の日次終値表と個別銘柄の月次履歴を取得します。
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient は指定された設定とHTTPクライアントでClientを生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client}
}

// Market returns the source identifier.
func (c *Client) Market() entity.Market {
	return entity.MarketTPEx
}

// FetchDaily は日次終値表を取得します。date がゼロ値なら openapi の最新スナップショット、
// それ以外は日付指定の終値表を使います。
func (c *Client) FetchDaily(ctx context.Context, date time.Time) ([]entity.Quote, error) {
	var (
		body []byte
		err  error
	)
	if date.IsZero() {
		body, err = c.get(ctx, pathOpenAPIDaily, nil)
	} else {
		q := url.Values{}
		q.Set("l", "zh-tw")
		q.Set("o", "json")
		q.Set("d", normalize.ROCDate(date))
		body, err = c.get(ctx, pathDailyQuotes, q)
	}
	if err != nil {
		return nil, err
	}

	day := time.Time{}
	if !date.IsZero() {
		day = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	}

	root := gjson.ParseBytes(body)
	switch s := detectSnapshot(root); s {
	case shapeOpenAPI:
		return parseOpenAPI(root, day), nil
	case shapeQuoteAA:
		if d, err := normalize.ParseDate(root.Get("reportDate").String()); err == nil {
			day = d
		}
		return parseQuoteAA(root, day), nil
	case shapeTables:
		if d, err := normalize.ParseDate(root.Get("date").String()); err == nil {
			day = d
		}
		return parseTables(body, normalize.RowContext{Market: entity.MarketTPEx, Date: day}, normalize.ColSymbol, normalize.ColClose)
	default:
		return nil, unknownShape("daily")
	}
}

// FetchMonth は1銘柄の月次日足（st43）を取得します。出来高・売買代金は千単位で返るため株数・元に換算します。
func (c *Client) FetchMonth(ctx context.Context, symbol string, month time.Time) ([]entity.Quote, error) {
	q := url.Values{}
	q.Set("l", "zh-tw")
	q.Set("o", "json")
	q.Set("d", normalize.ROCMonth(month))
	q.Set("stkno", symbol)

	body, err := c.get(ctx, pathMonth, q)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	name := strings.TrimSpace(root.Get("stkName").String())
	switch detectHistory(root) {
	case shapeHistoryAA:
		return parseHistoryAA(root, symbol, name), nil
	case shapeTables:
		rc := normalize.RowContext{Market: entity.MarketTPEx, Symbol: symbol, Name: name}
		return parseTables(body, rc, normalize.ColDate, normalize.ColClose)
	default:
		return nil, unknownShape("st43")
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tpex %s: %w", domain.ErrUpstreamUnavailable, path, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: tpex http %d", domain.ErrUpstreamUnavailable, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: tpex read body: %w", domain.ErrUpstreamUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: tpex %s returned non-JSON body", domain.ErrUpstreamUnavailable, path)
	}
	return body, nil
}
