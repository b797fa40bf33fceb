package normalize

import "strings"

// Column identifies a semantic column in a table-shaped payload.
type Column int

const (
	ColSymbol Column = iota
	ColName
	ColDate
	ColSign
	ColChange
	ColVolumeThousands
	ColVolume
	ColValueThousands
	ColValue
	ColTransactions
	ColOpen
	ColHigh
	ColLow
	ColClose
)

var columnNames = map[Column]string{
	ColSymbol:          "symbol",
	ColName:            "name",
	ColDate:            "date",
	ColSign:            "sign",
	ColChange:          "change",
	ColVolumeThousands: "volume_k",
	ColVolume:          "volume",
	ColValueThousands:  "value_k",
	ColValue:           "value",
	ColTransactions:    "transactions",
	ColOpen:            "open",
	ColHigh:            "high",
	ColLow:             "low",
	ColClose:           "close",
}

func (c Column) String() string {
	return columnNames[c]
}

// synonyms は列ごとの見出し候補です。先頭ほど優先度が高く、完全一致 → 部分一致の順に照合します。
var synonyms = map[Column][]string{
	ColSymbol:          {"證券代號", "股票代號", "證券代碼", "代號"},
	ColName:            {"證券名稱", "股票名稱", "公司名稱", "名稱"},
	ColDate:            {"日期"},
	ColSign:            {"漲跌(+/-)"},
	ColChange:          {"漲跌價差", "漲跌"},
	ColVolumeThousands: {"成交仟股"},
	ColVolume:          {"成交股數", "成交數量"},
	ColValueThousands:  {"成交仟元"},
	ColValue:           {"成交金額"},
	ColTransactions:    {"成交筆數", "筆數"},
	ColOpen:            {"開盤價", "開盤"},
	ColHigh:            {"最高價", "最高"},
	ColLow:             {"最低價", "最低"},
	ColClose:           {"收盤價", "收盤"},
}

// resolveOrder matters: narrower headers must claim their column before a broader synonym
// ("漲跌" is a substring of "漲跌(+/-)") can grab it.
var resolveOrder = []Column{
	ColSymbol, ColName, ColDate, ColSign, ColChange,
	ColVolumeThousands, ColVolume, ColValueThousands, ColValue, ColTransactions,
	ColOpen, ColHigh, ColLow, ColClose,
}

// Header maps semantic columns to positions in a field-name manifest.
type Header struct {
	index map[Column]int
}

// ResolveHeader matches each semantic column against the manifest by synonym rather than position.
func ResolveHeader(fields []string) Header {
	h := Header{index: make(map[Column]int, len(resolveOrder))}
	claimed := make(map[int]bool, len(fields))
	for _, col := range resolveOrder {
		if i := findColumn(fields, claimed, synonyms[col]...); i >= 0 {
			h.index[col] = i
			claimed[i] = true
		}
	}
	return h
}

// Has reports whether the column was found.
func (h Header) Has(c Column) bool {
	_, ok := h.index[c]
	return ok
}

// HasAll reports whether every listed column was found.
func (h Header) HasAll(cols ...Column) bool {
	for _, c := range cols {
		if !h.Has(c) {
			return false
		}
	}
	return true
}

// Cell returns the raw cell for c, or "" when the column or cell is missing.
func (h Header) Cell(row []string, c Column) string {
	i, ok := h.index[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// FindColumn returns the index of the first field matching one of the ranked synonyms,
// or -1. Exact matches win over substring matches.
func FindColumn(fields []string, ranked ...string) int {
	return findColumn(fields, nil, ranked...)
}

func findColumn(fields []string, claimed map[int]bool, ranked ...string) int {
	for _, want := range ranked {
		for i, f := range fields {
			if !claimed[i] && strings.TrimSpace(f) == want {
				return i
			}
		}
	}
	for _, want := range ranked {
		for i, f := range fields {
			if !claimed[i] && strings.Contains(f, want) {
				return i
			}
		}
	}
	return -1
}
