// Package usecase はスコアリングエンジンとスキャンオーケストレータを実装します。
package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	mdentity "stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/feature/scanner/domain"
	"stock_scanner/internal/feature/scanner/domain/entity"
	"stock_scanner/internal/shared/indicator"
)

// 配点（合計100点、ファンダメンタル加点は上乗せ後に100で頭打ち）
const (
	weightVolume       = 40.0
	weightMAPart       = 10.0 // 収束・整列・ブレイクアウトの各10点
	weightChip         = 30.0
	maxFundamental     = 10.0
	instStreakRequired = 3

	minShallowHistory = 5
	minFullHistory    = 20
	baselineDays      = 20
	trendDays         = 10
	pocLookback       = 60

	blowOffRatio          = 10.0
	volumeIncreasingRatio = 1.2
)

// EvaluateInput は1銘柄の評価に必要な入力です。Prices の並び順は問いません。
type EvaluateInput struct {
	Symbol string
	Name   string
	Market mdentity.Market
	Prices []mdentity.Quote
	Flows  []mdentity.InstitutionalFlow
	// FlowDates は法人売買を取得しようとした営業日です。空なら Prices の日付を使います。
	FlowDates []time.Time
	// FlowUnavailable は法人売買の取得に失敗したことを示します。
	FlowUnavailable  bool
	FundamentalBonus float64
	Depth            entity.Depth
}

// ScoringEngine は指標を合成してスコア・タグ・ヒント・リスク警告を作ります。状態を持ちません。
type ScoringEngine struct{}

// NewScoringEngine は ScoringEngine を生成します。
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// MinHistory returns the minimum trading days required for depth.
func MinHistory(d entity.Depth) int {
	if d == entity.DepthFull {
		return minFullHistory
	}
	return minShallowHistory
}

// Evaluate は価格履歴と法人売買から AnalysisResult を作ります。
// 履歴が深さごとの最小日数に満たない場合は ErrInsufficientHistory を返します。
// 同じ入力に対して常に同じ結果を返します。
func (e *ScoringEngine) Evaluate(in EvaluateInput, s entity.ScanSettings) (entity.AnalysisResult, error) {
	if err := s.Validate(); err != nil {
		return entity.AnalysisResult{}, err
	}
	depth := in.Depth
	if depth == "" {
		depth = entity.DepthShallow
	}

	prices := chronological(in.Prices)
	if need := MinHistory(depth); len(prices) < need {
		return entity.AnalysisResult{}, fmt.Errorf("%w: %s has %d trading days, need %d", domain.ErrInsufficientHistory, in.Symbol, len(prices), need)
	}

	n := len(prices)
	last, prev := prices[n-1], prices[n-2]
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, q := range prices {
		closes[i] = q.Close
		volumes[i] = float64(q.Volume)
	}

	r := entity.AnalysisResult{
		Symbol: in.Symbol,
		Name:   firstNonEmpty(in.Name, last.Name),
		Market: in.Market,
		Date:   last.Date,
		Close:  last.Close,
		Change: round(last.Close-prev.Close, 4),
		Volume: last.Volume,
		Depth:  depth,
	}
	if r.Market == mdentity.MarketUnknown {
		r.Market = last.Market
	}
	if prev.Close > 0 {
		r.ChangePercent = round((last.Close-prev.Close)/prev.Close*100, 4)
	}

	// 出来高: 当日 ÷ 当日を除く直近20日の平均
	baseline := volumes[max(0, n-1-baselineDays) : n-1]
	r.VolumeRatio = round(indicator.VolumeRatio(volumes[n-1:], baseline), 4)

	// 移動平均は新しい順に並べて先頭 period 件を使う
	newest := indicator.NewestFirst(closes)
	ma5, ok5 := indicator.SMA(newest, 5)
	ma20, ok20 := indicator.SMA(newest, 20)
	mas := []float64{}
	if ok5 {
		r.MA5 = round(ma5, 4)
		mas = append(mas, ma5)
	}
	if ok20 {
		r.MA20 = round(ma20, 4)
		mas = append(mas, ma20)
	}
	if ok5 && ok20 {
		gap, squeezing := indicator.MAConstriction(ma5, ma20, s.MAGap)
		r.MAGap = round(gap, 6)
		r.IsSqueezing = squeezing
		r.MAAligned = last.Close > ma5 && ma5 > ma20
	}
	r.IsBreakout = indicator.Breakout(last.Close, mas, r.ChangePercent, s.BreakoutPct)

	flowDates := in.FlowDates
	if len(flowDates) == 0 {
		flowDates = make([]time.Time, n)
		for i, q := range prices {
			flowDates[i] = q.Date
		}
	}
	r.InstStreak = trustBuyStreak(in.Flows, flowDates)
	r.FlowUnavailable = in.FlowUnavailable

	bars := make([]indicator.Bar, n)
	for i, q := range prices {
		bars[i] = indicator.Bar{Open: q.Open, High: q.High, Low: q.Low, Close: q.Close, Volume: q.Volume}
	}
	if poc, ok := indicator.PointOfControl(bars, pocLookback, indicator.DefaultBins); ok {
		r.POC = round(poc, 2)
	}

	trendFrom := max(0, n-trendDays)
	for _, q := range prices[trendFrom:] {
		r.VolumeTrend = append(r.VolumeTrend, q.Volume)
	}

	b := entity.ScoreBreakdown{
		Volume:      round(weightVolume*math.Min(r.VolumeRatio/s.VolumeRatio, 1), 4),
		Fundamental: math.Min(math.Max(in.FundamentalBonus, 0), maxFundamental),
	}
	if r.IsSqueezing {
		b.MA += weightMAPart
	}
	if r.MAAligned {
		b.MA += weightMAPart
	}
	if r.IsBreakout {
		b.MA += weightMAPart
	}
	if r.InstStreak >= instStreakRequired {
		b.Chip = weightChip
	}
	total := b.Volume + b.MA + b.Chip + b.Fundamental
	r.Score = round(math.Min(total, 100)/100, 4)
	r.Verdict = verdictFor(r.Score)

	r.Tags = tagsFor(r, s, volumes)
	r.Hints = hintsFor(r, s)
	r.RiskWarning = riskWarning(r, ok5)

	if depth == entity.DepthFull {
		r.Breakdown = &b
		k := indicator.KellyPosition(r.Score, last.Close, ma5)
		r.Kelly = &k
	}
	return r, nil
}

// chronological returns a copy sorted ascending by date, keeping only valid quotes.
func chronological(quotes []mdentity.Quote) []mdentity.Quote {
	out := make([]mdentity.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Valid() {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// trustBuyStreak は営業日 days を新しい順にたどり、投信の買い越しが何日連続しているかを返します。
// 投信の行がない営業日は買い越しなしとして連続を打ち切ります。
func trustBuyStreak(flows []mdentity.InstitutionalFlow, days []time.Time) int {
	net := make(map[string]int64)
	for _, f := range flows {
		if f.Class != mdentity.InvestorInvestmentTrust {
			continue
		}
		net[dayKey(f.Date)] += f.Net()
	}

	keys := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		k := dayKey(d)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	streak := 0
	for _, k := range keys {
		v, ok := net[k]
		if !ok || v <= 0 {
			break
		}
		streak++
	}
	return streak
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func verdictFor(score float64) entity.Verdict {
	switch {
	case score >= 0.8:
		return entity.VerdictStrong
	case score >= 0.6:
		return entity.VerdictNormal
	case score >= 0.4:
		return entity.VerdictWatch
	default:
		return entity.VerdictNeutral
	}
}

func tagsFor(r entity.AnalysisResult, s entity.ScanSettings, volumes []float64) []entity.Tag {
	tags := []entity.Tag{}
	if r.VolumeRatio >= s.VolumeRatio {
		tags = append(tags, entity.TagVolumeExplosion)
	}
	if r.IsSqueezing {
		tags = append(tags, entity.TagMASqueeze)
	}
	if r.IsBreakout {
		tags = append(tags, entity.TagBreakout)
	}
	if r.InstStreak >= instStreakRequired {
		tags = append(tags, entity.TagInstBuying)
	}
	// 直近5日平均が20日平均の1.2倍以上
	newest := indicator.NewestFirst(volumes)
	short, ok := indicator.SMA(newest, 5)
	long := indicator.Mean(newest[:min(len(newest), baselineDays)])
	if ok && long > 0 && short >= long*volumeIncreasingRatio {
		tags = append(tags, entity.TagVolumeIncreasing)
	}
	return tags
}

func hintsFor(r entity.AnalysisResult, s entity.ScanSettings) []string {
	var hints []string
	if r.VolumeRatio >= s.VolumeRatio {
		hints = append(hints, fmt.Sprintf("volume %.1fx the 20-day average", r.VolumeRatio))
	}
	if r.IsSqueezing {
		hints = append(hints, fmt.Sprintf("MA5/MA20 within %.2f%%", r.MAGap*100))
	}
	if r.MAAligned {
		hints = append(hints, "close > MA5 > MA20")
	}
	if r.IsBreakout {
		hints = append(hints, fmt.Sprintf("broke above moving averages on a %.2f%% move", r.ChangePercent))
	}
	if r.InstStreak > 0 {
		hints = append(hints, fmt.Sprintf("investment trusts net buying %d day(s) in a row", r.InstStreak))
	}
	if r.POC > 0 && r.Close > r.POC {
		hints = append(hints, fmt.Sprintf("trading above the volume point of control %.2f", r.POC))
	}
	return hints
}

func riskWarning(r entity.AnalysisResult, hasMA5 bool) string {
	var warnings []string
	if hasMA5 && r.Close < r.MA5 {
		warnings = append(warnings, "close below MA5")
	}
	if r.VolumeRatio > blowOffRatio {
		warnings = append(warnings, fmt.Sprintf("volume %.1fx average may be a blow-off top", r.VolumeRatio))
	}
	if r.FlowUnavailable {
		warnings = append(warnings, "institutional flows unavailable")
	}
	return strings.Join(warnings, "; ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
