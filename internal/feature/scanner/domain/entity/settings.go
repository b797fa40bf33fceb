// Package entity defines the domain models for the scanner feature.
package entity

import (
	"fmt"

	"stock_scanner/internal/feature/scanner/domain"
)

const (
	DefaultVolumeRatio = 3.5
	DefaultMAGap       = 0.02
	DefaultBreakoutPct = 3.0
)

// ScanSettings は1回のスキャンで使う閾値です。スキャン開始時に値でコピーされ、途中で変更されません。
type ScanSettings struct {
	VolumeRatio float64 `json:"volume_ratio" yaml:"volume_ratio"` // 出来高急増とみなす倍率
	MAGap       float64 `json:"ma_gap" yaml:"ma_gap"`             // MA5/MA20 の収束とみなす乖離率（0.02 = 2%）
	BreakoutPct float64 `json:"breakout_pct" yaml:"breakout_pct"` // ブレイクアウトとみなす前日比（3.0 = 3%）
}

// DefaultScanSettings returns 3.5x / 2% / 3%.
func DefaultScanSettings() ScanSettings {
	return ScanSettings{
		VolumeRatio: DefaultVolumeRatio,
		MAGap:       DefaultMAGap,
		BreakoutPct: DefaultBreakoutPct,
	}
}

// Validate はすべての閾値が正であることを確認します。
func (s ScanSettings) Validate() error {
	switch {
	case s.VolumeRatio <= 0:
		return fmt.Errorf("%w: volume_ratio must be > 0, got %v", domain.ErrInvalidSettings, s.VolumeRatio)
	case s.MAGap <= 0:
		return fmt.Errorf("%w: ma_gap must be > 0, got %v", domain.ErrInvalidSettings, s.MAGap)
	case s.BreakoutPct <= 0:
		return fmt.Errorf("%w: breakout_pct must be > 0, got %v", domain.ErrInvalidSettings, s.BreakoutPct)
	}
	return nil
}
