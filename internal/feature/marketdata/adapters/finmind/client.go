package finmind

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
)

const datasetInstitutional = "TaiwanStockInstitutionalInvestorsBuySell"

// Client は補助データ API から三大法人の売買を取得します。
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient は指定された設定とHTTPクライアントでClientを生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client}
}

// Enabled はトークンが設定されているかを返します。
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Token != ""
}

type envelope struct {
	Status int          `json:"status"`
	Msg    string       `json:"msg"`
	Data   []flowRecord `json:"data"`
}

type flowRecord struct {
	Date    string `json:"date"`
	StockID string `json:"stock_id"`
	Buy     int64  `json:"buy"`
	Sell    int64  `json:"sell"`
	Name    string `json:"name"`
}

// investorNames maps provider investor names to classes. Foreign_Dealer_Self is folded into foreign.
var investorNames = map[string]entity.InvestorClass{
	"Foreign_Investor":    entity.InvestorForeign,
	"Foreign_Dealer_Self": entity.InvestorForeign,
	"Investment_Trust":    entity.InvestorInvestmentTrust,
	"Dealer_self":         entity.InvestorDealerSelf,
	"Dealer_Hedging":      entity.InvestorDealerHedge,
}

// FetchInstitutionalRange は [from, to] の期間の銘柄別・投資家区分別の売買を返します。
// status が 200 以外の応答は ErrUpstreamUnavailable として扱います。
func (c *Client) FetchInstitutionalRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.InstitutionalFlow, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: finmind token not configured", domain.ErrUpstreamUnavailable)
	}

	q := url.Values{}
	q.Set("dataset", datasetInstitutional)
	q.Set("data_id", symbol)
	q.Set("start_date", from.Format(time.DateOnly))
	q.Set("end_date", to.Format(time.DateOnly))
	q.Set("token", c.cfg.Token)
	u := fmt.Sprintf("%s/data?%s", strings.TrimRight(c.cfg.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: finmind: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: finmind http %d", domain.ErrUpstreamUnavailable, res.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: finmind decode: %w", domain.ErrUpstreamUnavailable, err)
	}
	if env.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: finmind status %d: %s", domain.ErrUpstreamUnavailable, env.Status, env.Msg)
	}

	merged := make(map[string]*entity.InstitutionalFlow)
	var order []string
	for _, r := range env.Data {
		class, ok := investorNames[r.Name]
		if !ok {
			continue
		}
		d, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			slog.Debug("finmind: skip record with bad date", "date", r.Date)
			continue
		}
		key := r.Date + "|" + string(class)
		f, ok := merged[key]
		if !ok {
			f = &entity.InstitutionalFlow{Symbol: r.StockID, Date: d, Class: class}
			merged[key] = f
			order = append(order, key)
		}
		f.Buy += r.Buy
		f.Sell += r.Sell
	}

	out := make([]entity.InstitutionalFlow, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out, nil
}
