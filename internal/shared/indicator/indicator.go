// Package indicator はテクニカル指標の純粋関数を提供します。
// どの関数も入力を変更せず、時刻や乱数に依存しません。
package indicator

import "math"

// SMA は values の先頭 period 要素の単純平均を返します。要素が足りない場合 ok は false です。
// 並び順は呼び出し側の責任です。直近 period 日の平均が欲しい場合は NewestFirst で並べ替えてから渡します。
func SMA(values []float64, period int) (avg float64, ok bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	return sum / float64(period), true
}

// NewestFirst returns a reversed copy of a chronologically ascending series.
func NewestFirst(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// VolumeRatio は観測ウィンドウの平均出来高とベースラインウィンドウの平均出来高の比です。
// ベースラインが空または平均0の場合は0を返します。
func VolumeRatio(observation, baseline []float64) float64 {
	if len(observation) == 0 {
		return 0
	}
	base := Mean(baseline)
	if base == 0 {
		return 0
	}
	return Mean(observation) / base
}

// MAConstriction は |ma5-ma20|/ma20 の乖離率と、それが threshold 以下（収束中）かを返します。
func MAConstriction(ma5, ma20, threshold float64) (gap float64, squeezing bool) {
	if ma20 == 0 {
		return math.Inf(1), false
	}
	gap = math.Abs(ma5-ma20) / math.Abs(ma20)
	return gap, gap <= threshold
}

// Breakout は終値がすべての移動平均を上回り、かつ変化率が閾値以上かを判定します。
// changePct と thresholdPct はどちらもパーセント値（3.0 = 3%）です。
func Breakout(close float64, mas []float64, changePct, thresholdPct float64) bool {
	if len(mas) == 0 {
		return false
	}
	top := mas[0]
	for _, m := range mas[1:] {
		top = math.Max(top, m)
	}
	return close > top && changePct >= thresholdPct
}
