package companyinfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	mddomain "stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/symbollist/domain/entity"
	"stock_scanner/internal/feature/symbollist/usecase"
)

// feed は市場ごとのエンドポイントとフィールド名です。
type feed struct {
	market      string
	path        string
	codeField   string
	nameField   string
	sectorField string
}

var (
	twseFeed = feed{
		market:      "TWSE",
		path:        "/opendata/t187ap03_L",
		codeField:   "公司代號",
		nameField:   "公司簡稱",
		sectorField: "產業別",
	}
	tpexFeed = feed{
		market:      "TPEX",
		path:        "/mopsfin_t187ap03_O",
		codeField:   "SecuritiesCompanyCode",
		nameField:   "CompanyAbbreviation",
		sectorField: "SecuritiesIndustryCode",
	}
)

// Client は1つの取引所の会社基本資料を取得します。
type Client struct {
	baseURL string
	feed    feed
	client  *http.Client
}

var _ usecase.CompanySource = (*Client)(nil)

// NewTWSEClient は上場会社フィードのクライアントを生成します。
func NewTWSEClient(cfg Config, client *http.Client) *Client {
	return &Client{baseURL: cfg.TWSEBaseURL, feed: twseFeed, client: client}
}

// NewTPExClient は上櫃会社フィードのクライアントを生成します。
func NewTPExClient(cfg Config, client *http.Client) *Client {
	return &Client{baseURL: cfg.TPExBaseURL, feed: tpexFeed, client: client}
}

// Market returns the exchange identifier.
func (c *Client) Market() string {
	return c.feed.market
}

// FetchCompanies は会社一覧を取得し、4桁の普通株コードのみを返します。
func (c *Client) FetchCompanies(ctx context.Context) ([]entity.Symbol, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.baseURL, "/")+c.feed.path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: companyinfo %s: %w", mddomain.ErrUpstreamUnavailable, c.feed.market, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: companyinfo %s: status %d", mddomain.ErrUpstreamUnavailable, c.feed.market, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: companyinfo %s: %w", mddomain.ErrUpstreamUnavailable, c.feed.market, err)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: companyinfo %s: response is not a JSON array", mddomain.ErrUpstreamUnavailable, c.feed.market)
	}
	return c.parse(root), nil
}

func (c *Client) parse(root gjson.Result) []entity.Symbol {
	seen := map[string]struct{}{}
	var out []entity.Symbol
	root.ForEach(func(_, row gjson.Result) bool {
		code := strings.TrimSpace(row.Get(c.feed.codeField).String())
		if !isCommonStock(code) {
			return true
		}
		if _, dup := seen[code]; dup {
			return true
		}
		seen[code] = struct{}{}

		name := strings.TrimSpace(row.Get(c.feed.nameField).String())
		if name == "" {
			name = code
		}
		sortKey, _ := strconv.Atoi(code)
		out = append(out, entity.Symbol{
			Code:     code,
			Name:     name,
			Market:   c.feed.market,
			Sector:   SectorName(row.Get(c.feed.sectorField).String()),
			IsActive: true,
			SortKey:  sortKey,
		})
		return true
	})
	return out
}

// isCommonStock は4文字の英数字コードかを判定します。
func isCommonStock(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
