package engine

import (
	"math"

	"github.com/seedwise/kindred/internal/config"
)

// adaptiveThreshold derives the per-request score floor from the distribution
// of base scores. Tight clusters get a floor above the mean so only genuine
// outliers pass; spread-out sets get a generous one. The floor always stays
// inside [MinThreshold, MaxThreshold], and drops just below the best score
// when even that would not clear it, so borderline sets still rank something.
func adaptiveThreshold(bases []float64, cfg config.EngineConfig) float64 {
	if len(bases) == 0 {
		return clampThreshold(cfg.DefaultThreshold, cfg)
	}

	mean, std, top := baseStats(bases)

	// A near-exact duplicate dominates the set; the configured default
	// separates it from the noise better than distribution math would.
	if top >= 0.99 {
		t := cfg.DefaultThreshold
		if t > 0.99 {
			t = 0.99
		}
		return clampThreshold(t, cfg)
	}

	var t float64
	switch {
	case len(bases) < 5:
		t = mean - 0.10
	case std < 0.05:
		t = mean + 0.05
	case std < 0.15:
		t = mean - 0.05
	default:
		t = mean - 0.15
	}
	t = clampThreshold(t, cfg)

	if top < t {
		t = top - 0.05
		if t < cfg.MinThreshold {
			t = cfg.MinThreshold
		}
	}
	return t
}

func baseStats(bases []float64) (mean, std, top float64) {
	top = math.Inf(-1)
	for _, b := range bases {
		mean += b
		if b > top {
			top = b
		}
	}
	mean /= float64(len(bases))

	var variance float64
	for _, b := range bases {
		d := b - mean
		variance += d * d
	}
	variance /= float64(len(bases))
	return mean, math.Sqrt(variance), top
}

func clampThreshold(t float64, cfg config.EngineConfig) float64 {
	if t < cfg.MinThreshold {
		return cfg.MinThreshold
	}
	if t > cfg.MaxThreshold {
		return cfg.MaxThreshold
	}
	return t
}
