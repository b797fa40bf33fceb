package entity

import (
	"time"

	mdentity "stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/shared/indicator"
)

// Tag は閾値の交差で付与される分類タグです。
type Tag string

const (
	TagVolumeExplosion  Tag = "VOLUME_EXPLOSION"
	TagMASqueeze        Tag = "MA_SQUEEZE"
	TagBreakout         Tag = "BREAKOUT"
	TagInstBuying       Tag = "INST_BUYING"
	TagVolumeIncreasing Tag = "VOLUME_INCREASING"
)

// Verdict summarizes the composite score.
type Verdict string

const (
	VerdictStrong  Verdict = "STRONG_RESONANCE"
	VerdictNormal  Verdict = "RESONANCE"
	VerdictWatch   Verdict = "WATCH"
	VerdictNeutral Verdict = "NEUTRAL"
)

// Depth は評価の深さです。Full のみ MA20 必須で、ケリー基準と内訳を含みます。
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthFull    Depth = "full"
)

// ScoreBreakdown は合成スコアの構成要素（各 0〜配点）です。
type ScoreBreakdown struct {
	Volume      float64 `json:"volume"`
	MA          float64 `json:"ma"`
	Chip        float64 `json:"chip"`
	Fundamental float64 `json:"fundamental"`
}

// AnalysisResult は1銘柄の評価結果です。キャッシュにはこの構造体の JSON が保存されます。
type AnalysisResult struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Market        mdentity.Market `json:"market"`
	Date          time.Time       `json:"date"`
	Close         float64         `json:"close"`
	Change        float64         `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	Volume        int64           `json:"volume"`

	Score       float64 `json:"score"`
	VolumeRatio float64 `json:"volume_ratio"`
	MA5         float64 `json:"ma5,omitempty"`
	MA20        float64 `json:"ma20,omitempty"`
	MAGap       float64 `json:"ma_gap,omitempty"`
	IsSqueezing bool    `json:"is_squeezing"`
	MAAligned   bool    `json:"ma_aligned"`
	IsBreakout  bool    `json:"is_breakout"`
	InstStreak  int     `json:"inst_streak"`
	POC         float64 `json:"poc,omitempty"`
	// FlowUnavailable は法人売買が取得できず InstStreak が0扱いであることを示します。
	FlowUnavailable bool `json:"flow_unavailable,omitempty"`

	Verdict     Verdict          `json:"verdict,omitempty"`
	Tags        []Tag            `json:"tags"`
	Hints       []string         `json:"hints,omitempty"`
	VolumeTrend []int64          `json:"volume_trend,omitempty"`
	Kelly       *indicator.Kelly `json:"kelly,omitempty"`
	Breakdown   *ScoreBreakdown  `json:"breakdown,omitempty"`
	RiskWarning string           `json:"risk_warning,omitempty"`
	Depth       Depth            `json:"depth,omitempty"`
}

// HasTag reports whether the result carries tag.
func (r AnalysisResult) HasTag(tag Tag) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
