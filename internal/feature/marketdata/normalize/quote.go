package normalize

import (
	"math"
	"strings"
	"time"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
)

// symbolLength は普通株の銘柄コード長です。ワラントや派生商品はこれより長くなります。
const symbolLength = 4

// RowContext supplies what a row cannot tell about itself.
type RowContext struct {
	Market entity.Market
	Date   time.Time // used when the table has no date column
	Symbol string    // used when the table has no symbol column (single-symbol history)
	Name   string
}

// QuoteFromRow builds a Quote from a header-resolved row.
func QuoteFromRow(h Header, row []string, rc RowContext) (entity.Quote, error) {
	q := entity.Quote{
		Symbol: h.Cell(row, ColSymbol),
		Name:   h.Cell(row, ColName),
		Market: rc.Market,
		Date:   rc.Date,
	}
	if q.Symbol == "" {
		q.Symbol = rc.Symbol
	}
	if q.Name == "" {
		q.Name = rc.Name
	}
	if h.Has(ColDate) {
		raw := h.Cell(row, ColDate)
		d, err := ParseDate(raw)
		if err != nil {
			return entity.Quote{}, &domain.RecordError{Field: ColDate.String(), Value: raw, Err: err}
		}
		q.Date = d
	}

	var err error
	num := func(c Column) float64 {
		if err != nil || !h.Has(c) {
			return 0
		}
		raw := h.Cell(row, c)
		v, perr := ParseFloat(raw)
		if perr != nil {
			err = &domain.RecordError{Field: c.String(), Value: raw, Err: perr}
		}
		return v
	}

	q.Open = num(ColOpen)
	q.High = num(ColHigh)
	q.Low = num(ColLow)
	q.Close = num(ColClose)
	q.Change = num(ColChange)
	if h.Has(ColSign) {
		q.Change = math.Abs(q.Change) * ParseSign(h.Cell(row, ColSign))
	}
	if h.Has(ColVolumeThousands) {
		q.Volume = int64(math.Round(num(ColVolumeThousands) * 1000))
	} else {
		q.Volume = int64(math.Round(num(ColVolume)))
	}
	if h.Has(ColValueThousands) {
		q.Value = num(ColValueThousands) * 1000
	} else {
		q.Value = num(ColValue)
	}
	q.Transactions = int64(math.Round(num(ColTransactions)))
	if err != nil {
		return entity.Quote{}, err
	}
	return q, nil
}

// Keep reports whether q belongs in the output: a 4-character common-stock id, close > 0, volume >= 0.
func Keep(q entity.Quote) bool {
	return len([]rune(strings.TrimSpace(q.Symbol))) == symbolLength && q.Valid()
}

// FillRange replaces missing open/high/low with the close so that every kept quote has a usable bar.
func FillRange(q entity.Quote) entity.Quote {
	if q.Open <= 0 {
		q.Open = q.Close
	}
	if q.High <= 0 {
		q.High = math.Max(q.Open, q.Close)
	}
	if q.Low <= 0 {
		q.Low = math.Min(q.Open, q.Close)
	}
	return q
}
