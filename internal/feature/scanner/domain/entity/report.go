package entity

import (
	"time"

	mdentity "stock_scanner/internal/feature/marketdata/domain/entity"
)

// SymbolFailure は1銘柄の処理失敗です。スキャン全体は継続します。
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Stage  Stage  `json:"stage"`
	Error  string `json:"error"`
}

// StageCounts は各段階を通過した銘柄数です。
type StageCounts struct {
	Discovered int `json:"discovered"`
	Filtered   int `json:"filtered"`
	Analyzed   int `json:"analyzed"`
}

// ScanReport は runFullScan の結果です。部分的な失敗はエラーではなく Failures と Statuses に記録されます。
type ScanReport struct {
	RunID      string                  `json:"run_id"`
	Market     string                  `json:"market"`
	Sector     string                  `json:"sector,omitempty"`
	Settings   ScanSettings            `json:"settings"`
	Stage      Stage                   `json:"stage"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Sources    []mdentity.SourceStatus `json:"sources"`
	Counts     StageCounts             `json:"counts"`
	Failures   []SymbolFailure         `json:"failures,omitempty"`
	Results    []AnalysisResult        `json:"results"`
}
