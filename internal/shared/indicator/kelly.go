package indicator

import "math"

// Action is the Kelly sizing recommendation.
type Action string

const (
	ActionInvest Action = "INVEST"
	ActionAvoid  Action = "AVOID"
)

const (
	targetMultiplier = 1.10
	stopMultiplier   = 0.97
	kellySafety      = 0.5
	maxPositionPct   = 20.0
)

// Kelly はハーフケリーによる推奨ポジションです。
type Kelly struct {
	Action     Action  `json:"action"`
	Percentage float64 `json:"percentage"`
	WinRate    float64 `json:"win_rate"`
	RiskReward float64 `json:"risk_reward"`
}

// WinRate はスコアから想定勝率を求めます。
func WinRate(score float64) float64 {
	switch {
	case score >= 0.8:
		return 0.75
	case score >= 0.6:
		return 0.60
	case score >= 0.4:
		return 0.50
	default:
		return 0.45
	}
}

// KellyPosition は目標 close*1.10、損切り min(ma5, close*0.97) としてハーフケリーの資金比率を返します。
// 比率は [0, 20] % に収まり、損失幅が0以下なら常に Avoid/0% です。
func KellyPosition(score, close, ma5 float64) Kelly {
	p := WinRate(score)
	k := Kelly{Action: ActionAvoid, WinRate: p}

	target := close * targetMultiplier
	stop := math.Min(ma5, close*stopMultiplier)
	loss := close - stop
	if close <= 0 || loss <= 0 {
		return k
	}

	b := (target - close) / loss
	k.RiskReward = round2(b)
	f := (b*p - (1 - p)) / b
	if f > 0 {
		k.Action = ActionInvest
	}
	k.Percentage = round2(math.Min(math.Max(f*kellySafety*100, 0), maxPositionPct))
	return k
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
