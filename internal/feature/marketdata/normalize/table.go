package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"stock_scanner/internal/feature/marketdata/domain"
)

// Table is one labeled data table from a multi-table response.
type Table struct {
	Title  string
	Fields []string
	Rows   [][]string
}

// TablesFromJSON collects every table in body. Both the current `tables[]` layout and the
// older `fields`/`data`, `fieldsN`/`dataN` pairs are recognized.
func TablesFromJSON(body []byte) []Table {
	root := gjson.ParseBytes(body)
	var out []Table

	root.Get("tables").ForEach(func(_, t gjson.Result) bool {
		out = append(out, Table{
			Title:  t.Get("title").String(),
			Fields: stringSlice(t.Get("fields")),
			Rows:   rows(t.Get("data")),
		})
		return true
	})

	var suffixes []string
	root.ForEach(func(k, _ gjson.Result) bool {
		key := k.String()
		if strings.HasPrefix(key, "fields") {
			suffixes = append(suffixes, strings.TrimPrefix(key, "fields"))
		}
		return true
	})
	sort.Strings(suffixes)
	for _, sfx := range suffixes {
		out = append(out, Table{
			Title:  root.Get("title" + sfx).String(),
			Fields: stringSlice(root.Get("fields" + sfx)),
			Rows:   rows(root.Get("data" + sfx)),
		})
	}
	return out
}

// LocateTable returns the first table whose manifest resolves every required column.
// No match means the response carries no data for the date (ErrScheduleUnavailable).
func LocateTable(tables []Table, required ...Column) (Table, Header, error) {
	for _, t := range tables {
		h := ResolveHeader(t.Fields)
		if h.HasAll(required...) {
			return t, h, nil
		}
	}
	names := make([]string, 0, len(required))
	for _, c := range required {
		names = append(names, c.String())
	}
	return Table{}, Header{}, fmt.Errorf("%w: no table among %d with columns %v",
		domain.ErrScheduleUnavailable, len(tables), names)
}

// StatOK reports whether the primary exchange's `stat` field signals success.
// A payload without `stat` is treated as OK.
func StatOK(body []byte) bool {
	stat := gjson.GetBytes(body, "stat")
	return !stat.Exists() || strings.EqualFold(stat.String(), "OK")
}

func stringSlice(r gjson.Result) []string {
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}

func rows(r gjson.Result) [][]string {
	arr := r.Array()
	out := make([][]string, 0, len(arr))
	for _, row := range arr {
		out = append(out, stringSlice(row))
	}
	return out
}
