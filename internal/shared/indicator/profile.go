package indicator

import "math"

// DefaultBins is the histogram resolution used for the point of control.
const DefaultBins = 50

// Bar は出来高プロファイル計算に使う1日分の値です。
type Bar struct {
	Open, High, Low, Close float64
	Volume                 int64
}

// Representative は代表価格（始値・高値・安値・終値の平均）です。
func (b Bar) Representative() float64 {
	return (b.Open + b.High + b.Low + b.Close) / 4
}

// Profile は価格帯別出来高のヒストグラムです。
type Profile struct {
	Low   float64
	High  float64
	Step  float64
	Bins  []int64
	Total int64
}

// Center returns the mid price of bin i.
func (p Profile) Center(i int) float64 {
	if p.Step == 0 {
		return p.Low
	}
	return p.Low + (float64(i)+0.5)*p.Step
}

// PointOfControl returns the center price of the bin holding the most volume.
// Ties resolve to the lower price.
func (p Profile) PointOfControl() float64 {
	best := 0
	for i, v := range p.Bins {
		if v > p.Bins[best] {
			best = i
		}
	}
	return p.Center(best)
}

// VolumeProfile は bars の末尾 lookback 本（0以下なら全本）から出来高プロファイルを作ります。
// 価格範囲は期間中の最安値〜最高値で、各日の出来高は代表価格を含むビンに全量を割り当てます。
// ビン出来高の合計は入力出来高の合計と必ず一致します。
func VolumeProfile(bars []Bar, lookback, bins int) (Profile, bool) {
	if lookback > 0 && len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	if len(bars) == 0 {
		return Profile{}, false
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		lo = math.Min(lo, math.Min(b.Low, b.Representative()))
		hi = math.Max(hi, math.Max(b.High, b.Representative()))
	}

	p := Profile{Low: lo, High: hi}
	if hi == lo {
		p.Bins = []int64{0}
		for _, b := range bars {
			p.Bins[0] += b.Volume
			p.Total += b.Volume
		}
		return p, true
	}

	p.Step = (hi - lo) / float64(bins)
	p.Bins = make([]int64, bins)
	for _, b := range bars {
		i := int((b.Representative() - lo) / p.Step)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		p.Bins[i] += b.Volume
		p.Total += b.Volume
	}
	return p, true
}

// PointOfControl は lookback 期間の出来高最大価格帯の中心価格を返します。
// 価格が一定（最高値==最安値）の場合はその価格を返します。
func PointOfControl(bars []Bar, lookback, bins int) (float64, bool) {
	p, ok := VolumeProfile(bars, lookback, bins)
	if !ok {
		return 0, false
	}
	return p.PointOfControl(), true
}
