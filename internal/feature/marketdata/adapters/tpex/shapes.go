package tpex

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/feature/marketdata/normalize"
)

// shape は TPEx 応答の形式です。位置だけで推測せず、判別できた形式ごとに専用のパーサを使います。
type shape int

const (
	shapeUnknown   shape = iota
	shapeOpenAPI         // [{"SecuritiesCompanyCode": ...}, ...]
	shapeTables          // {"tables":[{"fields":[...],"data":[...]}]}
	shapeQuoteAA         // {"aaData":[[code,name,close,change,open,high,low,avg,volume,value,count,...]]}
	shapeHistoryAA       // {"aaData":[[date,vol_k,value_k,open,high,low,close,change,count]]}
)

func (s shape) String() string {
	switch s {
	case shapeOpenAPI:
		return "openapi"
	case shapeTables:
		return "tables"
	case shapeQuoteAA:
		return "quote-aaData"
	case shapeHistoryAA:
		return "history-aaData"
	default:
		return "unknown"
	}
}

// 日次終値表 aaData の列位置
const (
	qaCode = iota
	qaName
	qaClose
	qaChange
	qaOpen
	qaHigh
	qaLow
	qaAvg
	qaVolume
	qaValue
	qaCount
	qaMinLen
)

// 個別銘柄月次 aaData の列位置（出来高・売買代金は千単位）
const (
	haDate = iota
	haVolumeK
	haValueK
	haOpen
	haHigh
	haLow
	haClose
	haChange
	haCount
	haMinLen
)

// detectSnapshot は日次スナップショット応答の形式を判別します。
func detectSnapshot(root gjson.Result) shape {
	switch {
	case root.IsArray():
		if root.Get("0.SecuritiesCompanyCode").Exists() || len(root.Array()) == 0 {
			return shapeOpenAPI
		}
	case root.Get("tables").IsArray():
		return shapeTables
	case root.Get("aaData").IsArray():
		first := root.Get("aaData.0")
		if !first.Exists() || len(first.Array()) >= qaMinLen {
			return shapeQuoteAA
		}
	}
	return shapeUnknown
}

// detectHistory は月次履歴応答の形式を判別します。
func detectHistory(root gjson.Result) shape {
	switch {
	case root.Get("tables").IsArray():
		return shapeTables
	case root.Get("aaData").IsArray():
		first := root.Get("aaData.0")
		if !first.Exists() || len(first.Array()) >= haMinLen {
			return shapeHistoryAA
		}
	}
	return shapeUnknown
}

// parseOpenAPI は openapi 形式（フィールド名付きオブジェクト配列）を解析します。
func parseOpenAPI(root gjson.Result, fallback time.Time) []entity.Quote {
	var out []entity.Quote
	dropped := 0
	root.ForEach(func(_, rec gjson.Result) bool {
		q, err := openAPIQuote(rec, fallback)
		if err != nil {
			dropped++
			return true
		}
		if normalize.Keep(q) {
			out = append(out, normalize.FillRange(q))
		}
		return true
	})
	if dropped > 0 {
		slog.Debug("tpex: dropped malformed openapi records", "count", dropped)
	}
	return out
}

func openAPIQuote(rec gjson.Result, fallback time.Time) (entity.Quote, error) {
	q := entity.Quote{
		Symbol: strings.TrimSpace(rec.Get("SecuritiesCompanyCode").String()),
		Name:   strings.TrimSpace(rec.Get("CompanyName").String()),
		Market: entity.MarketTPEx,
		Date:   fallback,
	}
	if raw := rec.Get("Date").String(); raw != "" {
		d, err := normalize.ParseDate(raw)
		if err != nil {
			return entity.Quote{}, &domain.RecordError{Field: "Date", Value: raw, Err: err}
		}
		q.Date = d
	}

	fields := []struct {
		key string
		dst *float64
	}{
		{"Close", &q.Close},
		{"Change", &q.Change},
		{"Open", &q.Open},
		{"High", &q.High},
		{"Low", &q.Low},
		{"TransactionAmount", &q.Value},
	}
	for _, f := range fields {
		v, err := normalize.ParseFloat(rec.Get(f.key).String())
		if err != nil {
			return entity.Quote{}, &domain.RecordError{Field: f.key, Value: rec.Get(f.key).String(), Err: err}
		}
		*f.dst = v
	}
	var err error
	if q.Volume, err = normalize.ParseInt(rec.Get("TradingShares").String()); err != nil {
		return entity.Quote{}, &domain.RecordError{Field: "TradingShares", Value: rec.Get("TradingShares").String(), Err: err}
	}
	if q.Transactions, err = normalize.ParseInt(rec.Get("TransactionNumber").String()); err != nil {
		return entity.Quote{}, &domain.RecordError{Field: "TransactionNumber", Value: rec.Get("TransactionNumber").String(), Err: err}
	}
	return q, nil
}

// parseQuoteAA は日次終値表の aaData 形式を解析します。
func parseQuoteAA(root gjson.Result, date time.Time) []entity.Quote {
	var out []entity.Quote
	for _, row := range positionalRows(root.Get("aaData")) {
		if len(row) < qaMinLen {
			continue
		}
		q, err := quoteAARow(row, date)
		if err != nil {
			continue
		}
		if normalize.Keep(q) {
			out = append(out, normalize.FillRange(q))
		}
	}
	return out
}

func quoteAARow(row []string, date time.Time) (entity.Quote, error) {
	q := entity.Quote{
		Symbol: strings.TrimSpace(row[qaCode]),
		Name:   strings.TrimSpace(row[qaName]),
		Market: entity.MarketTPEx,
		Date:   date,
	}
	var err error
	parse := func(i int, field string) float64 {
		if err != nil {
			return 0
		}
		v, perr := normalize.ParseFloat(row[i])
		if perr != nil {
			err = &domain.RecordError{Field: field, Value: row[i], Err: perr}
		}
		return v
	}
	q.Close = parse(qaClose, "close")
	q.Change = parse(qaChange, "change")
	q.Open = parse(qaOpen, "open")
	q.High = parse(qaHigh, "high")
	q.Low = parse(qaLow, "low")
	q.Volume = int64(parse(qaVolume, "volume"))
	q.Value = parse(qaValue, "value")
	q.Transactions = int64(parse(qaCount, "transactions"))
	return q, err
}

// parseHistoryAA は個別銘柄月次 aaData 形式を解析します。
func parseHistoryAA(root gjson.Result, symbol, name string) []entity.Quote {
	var out []entity.Quote
	for _, row := range positionalRows(root.Get("aaData")) {
		if len(row) < haMinLen {
			continue
		}
		q, err := historyAARow(row, symbol, name)
		if err != nil {
			continue
		}
		if normalize.Keep(q) {
			out = append(out, normalize.FillRange(q))
		}
	}
	return out
}

func historyAARow(row []string, symbol, name string) (entity.Quote, error) {
	d, err := normalize.ParseDate(row[haDate])
	if err != nil {
		return entity.Quote{}, &domain.RecordError{Field: "date", Value: row[haDate], Err: err}
	}
	q := entity.Quote{Symbol: symbol, Name: name, Market: entity.MarketTPEx, Date: d}
	parse := func(i int, field string) float64 {
		if err != nil {
			return 0
		}
		v, perr := normalize.ParseFloat(row[i])
		if perr != nil {
			err = &domain.RecordError{Field: field, Value: row[i], Err: perr}
		}
		return v
	}
	q.Volume = int64(math.Round(parse(haVolumeK, "volume") * 1000))
	q.Value = parse(haValueK, "value") * 1000
	q.Open = parse(haOpen, "open")
	q.High = parse(haHigh, "high")
	q.Low = parse(haLow, "low")
	q.Close = parse(haClose, "close")
	q.Change = parse(haChange, "change")
	q.Transactions = int64(parse(haCount, "transactions"))
	return q, err
}

// parseTables はヘッダ付き tables 形式を列名解決で解析します。
func parseTables(body []byte, rc normalize.RowContext, required ...normalize.Column) ([]entity.Quote, error) {
	table, h, err := normalize.LocateTable(normalize.TablesFromJSON(body), required...)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Quote, 0, len(table.Rows))
	for _, row := range table.Rows {
		q, err := normalize.QuoteFromRow(h, row, rc)
		if err != nil {
			continue
		}
		if normalize.Keep(q) {
			out = append(out, normalize.FillRange(q))
		}
	}
	return out, nil
}

func positionalRows(r gjson.Result) [][]string {
	var out [][]string
	r.ForEach(func(_, row gjson.Result) bool {
		var cells []string
		row.ForEach(func(_, c gjson.Result) bool {
			cells = append(cells, c.String())
			return true
		})
		out = append(out, cells)
		return true
	})
	return out
}

func unknownShape(what string) error {
	return fmt.Errorf("%w: tpex %s: unrecognized payload shape", domain.ErrScheduleUnavailable, what)
}
