package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
		ok     bool
	}{
		{"exact length", []float64{1, 2, 3, 4, 5}, 5, 3, true},
		{"uses first elements only", []float64{10, 20, 30, 1000}, 3, 20, true},
		{"too short", []float64{1, 2}, 3, 0, false},
		{"zero period", []float64{1, 2}, 0, 0, false},
		{"empty", nil, 1, 0, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := SMA(tt.values, tt.period)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestNewestFirst(t *testing.T) {
	t.Parallel()

	in := []float64{1, 2, 3}
	out := NewestFirst(in)
	assert.Equal(t, []float64{3, 2, 1}, out)
	assert.Equal(t, []float64{1, 2, 3}, in, "input must not be modified")

	ma, ok := SMA(NewestFirst([]float64{1, 1, 1, 9, 9}), 2)
	require.True(t, ok)
	assert.InDelta(t, 9, ma, 1e-12)
}

func TestVolumeRatio(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 9.0, VolumeRatio([]float64{9000}, []float64{1000, 1000, 1000}), 1e-12)
	assert.Equal(t, 0.0, VolumeRatio([]float64{9000}, nil))
	assert.Equal(t, 0.0, VolumeRatio([]float64{9000}, []float64{0, 0}))
	assert.Equal(t, 0.0, VolumeRatio(nil, []float64{1000}))
}

func TestVolumeRatio_LinearInObservation(t *testing.T) {
	t.Parallel()

	baseline := []float64{800, 1200, 1000, 1000}
	base := VolumeRatio([]float64{500}, baseline)
	for _, k := range []float64{2, 3.5, 10} {
		assert.InDelta(t, base*k, VolumeRatio([]float64{500 * k}, baseline), 1e-9)
	}
}

func TestMAConstriction(t *testing.T) {
	t.Parallel()

	gap, squeezing := MAConstriction(100.4, 100.0, 0.02)
	assert.InDelta(t, 0.004, gap, 1e-9)
	assert.True(t, squeezing)

	gap, squeezing = MAConstriction(97, 100, 0.02)
	assert.InDelta(t, 0.03, gap, 1e-9)
	assert.False(t, squeezing)

	// 閾値ちょうどは収束とみなす
	_, squeezing = MAConstriction(102, 100, 0.02)
	assert.True(t, squeezing)

	gap, squeezing = MAConstriction(1, 0, 0.02)
	assert.True(t, math.IsInf(gap, 1))
	assert.False(t, squeezing)
}

func TestBreakout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		close     float64
		mas       []float64
		change    float64
		threshold float64
		want      bool
	}{
		{"above all and strong move", 105, []float64{100, 101, 102}, 3.5, 3, true},
		{"exactly at threshold", 105, []float64{100}, 3, 3, true},
		{"below one MA", 101, []float64{100, 102}, 5, 3, false},
		{"equal to MA is not above", 100, []float64{100}, 5, 3, false},
		{"weak move", 105, []float64{100}, 2.9, 3, false},
		{"no MAs", 105, nil, 5, 3, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Breakout(tt.close, tt.mas, tt.change, tt.threshold))
		})
	}
}
