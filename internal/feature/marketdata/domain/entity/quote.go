// Package entity defines the domain models for the marketdata feature.
package entity

import "time"

// Market は上流の取引所（データソース）を識別します。
type Market string

const (
	// MarketTWSE は上場市場（台湾証券取引所）です。
	MarketTWSE Market = "TWSE"
	// MarketTPEx は店頭市場（櫃買中心）です。
	MarketTPEx Market = "TPEX"
	// MarketUnknown は市場が未確定の銘柄に使います。履歴取得時は全ソースを順に試します。
	MarketUnknown Market = ""
)

// Quote is one end-of-day OHLCV record in canonical form.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Market       Market    `json:"market"`
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Change       float64   `json:"change"`       // 前日終値との差
	Volume       int64     `json:"volume"`       // 出来高（株）
	Value        float64   `json:"value"`        // 売買代金
	Transactions int64     `json:"transactions"` // 約定件数
}

// Valid reports whether the quote satisfies close > 0 and volume >= 0.
func (q Quote) Valid() bool {
	return q.Close > 0 && q.Volume >= 0
}

// PrevClose は Change から逆算した前日終値です。
func (q Quote) PrevClose() float64 {
	return q.Close - q.Change
}

// ChangePercent は前日比の騰落率（%）を返します。前日終値が不明な場合は0です。
func (q Quote) ChangePercent() float64 {
	prev := q.PrevClose()
	if prev <= 0 {
		return 0
	}
	return q.Change / prev * 100
}

// DateKey formats the trade date as YYYY-MM-DD.
func (q Quote) DateKey() string {
	return q.Date.Format(time.DateOnly)
}
