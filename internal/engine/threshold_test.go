package engine

import (
	"math"
	"testing"

	"github.com/seedwise/kindred/internal/config"
)

func TestAdaptiveThreshold(t *testing.T) {
	cfg := config.DefaultEngineConfig()

	tests := []struct {
		name  string
		bases []float64
		want  float64
	}{
		{"empty set uses the default", nil, 0.70},
		{"near-exact duplicate uses the default", []float64{0.995, 0.40, 0.30, 0.20, 0.10}, 0.70},
		{"small set sits below the mean", []float64{0.90, 0.30}, 0.60},
		{
			"tight cluster relaxes to just under the best",
			[]float64{0.82, 0.81, 0.80, 0.79, 0.78},
			0.77,
		},
		{
			"moderate spread sits slightly below the mean",
			[]float64{0.90, 0.85, 0.80, 0.75, 0.70},
			0.75,
		},
		{
			"wide spread floors at the minimum",
			[]float64{0.95, 0.60, 0.30, 0.10, 0.05},
			0.60,
		},
		{
			"tight high cluster clamps at the maximum",
			[]float64{0.96, 0.96, 0.96, 0.96, 0.96},
			0.95,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adaptiveThreshold(tt.bases, cfg)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("adaptiveThreshold(%v) = %v, want %v", tt.bases, got, tt.want)
			}
			if got < cfg.MinThreshold || got > cfg.MaxThreshold {
				t.Errorf("threshold %v outside [%v, %v]", got, cfg.MinThreshold, cfg.MaxThreshold)
			}
		})
	}
}

func TestAdaptiveThresholdNeverAboveBestReach(t *testing.T) {
	cfg := config.DefaultEngineConfig()

	// The floor relaxes to best-0.05 when nothing would clear it, but never
	// below the configured minimum.
	got := adaptiveThreshold([]float64{0.62, 0.61, 0.61, 0.60, 0.60}, cfg)
	if math.Abs(got-0.60) > 1e-9 {
		t.Errorf("adaptiveThreshold() = %v, want the 0.60 floor", got)
	}
}
