package entity

import "time"

// SourceStatus records the outcome of one upstream source within a fan-out fetch.
type SourceStatus struct {
	Source Market `json:"source"`
	OK     bool   `json:"ok"`
	Count  int    `json:"count"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

// MarketSnapshot は全市場スナップショットと、ソースごとの取得結果です。
type MarketSnapshot struct {
	Date     time.Time      `json:"date"`
	Quotes   []Quote        `json:"quotes"`
	Statuses []SourceStatus `json:"statuses"`
}

// Partial reports whether at least one source failed.
func (s MarketSnapshot) Partial() bool {
	for _, st := range s.Statuses {
		if !st.OK {
			return true
		}
	}
	return false
}

// Status returns the status recorded for the given source.
func (s MarketSnapshot) Status(src Market) (SourceStatus, bool) {
	for _, st := range s.Statuses {
		if st.Source == src {
			return st, true
		}
	}
	return SourceStatus{}, false
}
