package entity

import (
	"fmt"

	"stock_scanner/internal/feature/scanner/domain"
)

// Stage はスキャンパイプラインの状態です。
type Stage string

const (
	StageIdle      Stage = "IDLE"
	StageDiscovery Stage = "DISCOVERY"
	StageFiltering Stage = "FILTERING"
	StageAnalyzing Stage = "ANALYZING"
	StageComplete  Stage = "COMPLETE"
)

// next は正常系の遷移先です。どの状態からも Idle へは戻れます（致命的エラー時）。
var next = map[Stage]Stage{
	StageIdle:      StageDiscovery,
	StageDiscovery: StageFiltering,
	StageFiltering: StageAnalyzing,
	StageAnalyzing: StageComplete,
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Stage) bool {
	if to == StageIdle {
		return true
	}
	return next[from] == to
}

// Transition は遷移を検証し、不正な場合は ErrInvalidTransition を返します。
func Transition(from, to Stage) (Stage, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return to, nil
}
