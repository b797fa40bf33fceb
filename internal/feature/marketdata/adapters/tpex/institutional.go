package tpex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/feature/marketdata/normalize"
)

const pathInstitutional = "/web/stock/3insti/daily_trade/3itrade_hedge_result.php"

// 三大法人日報 aaData の列位置。区分ごとに買進・賣出・買賣超の3列が並びます。
const (
	iaCode           = 0
	iaForeignBuy     = 2 // 外資及陸資(不含外資自營商)
	iaTrustBuy       = 11
	iaDealerSelfBuy  = 14
	iaDealerHedgeBuy = 17
	iaMinLen         = 20
)

var positionalInvestors = []struct {
	class entity.InvestorClass
	buy   int
}{
	{entity.InvestorForeign, iaForeignBuy},
	{entity.InvestorInvestmentTrust, iaTrustBuy},
	{entity.InvestorDealerSelf, iaDealerSelfBuy},
	{entity.InvestorDealerHedge, iaDealerHedgeBuy},
}

// investorColumns は tables 形式の見出し候補です。
var investorColumns = []struct {
	class entity.InvestorClass
	buy   []string
	sell  []string
}{
	{entity.InvestorForeign,
		[]string{"外資及陸資(不含外資自營商)-買進股數", "外資及陸資-買進股數"},
		[]string{"外資及陸資(不含外資自營商)-賣出股數", "外資及陸資-賣出股數"}},
	{entity.InvestorInvestmentTrust, []string{"投信-買進股數"}, []string{"投信-賣出股數"}},
	{entity.InvestorDealerSelf, []string{"自營商(自行買賣)-買進股數"}, []string{"自營商(自行買賣)-賣出股數"}},
	{entity.InvestorDealerHedge, []string{"自營商(避險)-買進股數"}, []string{"自營商(避險)-賣出股數"}},
}

// FetchInstitutional は指定日の上櫃三大法人買賣明細を取得し、symbols に含まれる銘柄だけを返します。
// symbols が空なら全銘柄を返します。
func (c *Client) FetchInstitutional(ctx context.Context, date time.Time, symbols map[string]struct{}) ([]entity.InstitutionalFlow, error) {
	q := url.Values{}
	q.Set("l", "zh-tw")
	q.Set("o", "json")
	q.Set("se", "EW")
	q.Set("t", "D")
	q.Set("d", normalize.ROCDate(date))

	body, err := c.get(ctx, pathInstitutional, q)
	if err != nil {
		return nil, err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	root := gjson.ParseBytes(body)
	var rows []flowRow
	switch {
	case root.Get("tables").IsArray():
		rows, err = flowRowsFromTables(body)
	case root.Get("aaData").IsArray():
		rows = flowRowsFromAA(root.Get("aaData"))
	default:
		err = unknownShape("3insti")
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: tpex 3insti %s has no rows", domain.ErrScheduleUnavailable, date.Format(time.DateOnly))
	}

	var out []entity.InstitutionalFlow
	for _, r := range rows {
		if len(symbols) > 0 {
			if _, ok := symbols[r.symbol]; !ok {
				continue
			}
		}
		for _, f := range r.flows {
			f.Symbol = r.symbol
			f.Date = day
			out = append(out, f)
		}
	}
	return out, nil
}

type flowRow struct {
	symbol string
	flows  []entity.InstitutionalFlow
}

func flowRowsFromAA(aa gjson.Result) []flowRow {
	var out []flowRow
	dropped := 0
	for _, row := range positionalRows(aa) {
		if len(row) < iaMinLen {
			dropped++
			continue
		}
		r := flowRow{symbol: strings.TrimSpace(row[iaCode])}
		for _, inv := range positionalInvestors {
			buy, errB := normalize.ParseInt(row[inv.buy])
			sell, errS := normalize.ParseInt(row[inv.buy+1])
			if errB != nil || errS != nil {
				continue
			}
			r.flows = append(r.flows, entity.InstitutionalFlow{Buy: buy, Sell: sell, Class: inv.class})
		}
		out = append(out, r)
	}
	if dropped > 0 {
		slog.Debug("tpex: dropped short 3insti rows", "count", dropped)
	}
	return out
}

func flowRowsFromTables(body []byte) ([]flowRow, error) {
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
		return nil, fmt.Errorf("%w: tpex 3insti has no investor columns", domain.ErrScheduleUnavailable)
	}

	out := make([]flowRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		r := flowRow{symbol: h.Cell(row, normalize.ColSymbol)}
		for _, rc := range resolved {
			if rc.buy >= len(row) || rc.sell >= len(row) {
				continue
			}
			buy, errB := normalize.ParseInt(row[rc.buy])
			sell, errS := normalize.ParseInt(row[rc.sell])
			if errB != nil || errS != nil {
				continue
			}
			r.flows = append(r.flows, entity.InstitutionalFlow{Buy: buy, Sell: sell, Class: rc.class})
		}
		out = append(out, r)
	}
	return out, nil
}
