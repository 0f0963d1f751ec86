package domain

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// BaselineConfig controls historical baseline computation.
type BaselineConfig struct {
	// Window is the number of trailing observations summarized.
	Window int
}

// baselinePercentiles are the percentile table entries every Baseline carries.
var baselinePercentiles = []int{10, 25, 50, 75, 90}

// ComputeBaseline summarizes the trailing window of a field's history for
// one index: arithmetic mean, population standard deviation, and a fixed
// percentile table. The input is treated as a read-only snapshot; callers
// must pass current history, a Baseline is never updated in place.
func ComputeBaseline(index IndexID, values []float64, cfg BaselineConfig) (Baseline, error) {
	if cfg.Window < 1 {
		return Baseline{}, fmt.Errorf("baseline window must be positive, got %d", cfg.Window)
	}
	if len(values) == 0 {
		return Baseline{}, fmt.Errorf("no history for %s: %w", index, ErrInsufficientData)
	}

	window := values
	if len(window) > cfg.Window {
		window = window[len(window)-cfg.Window:]
	}
	data := stats.Float64Data(window)

	mean, err := stats.Mean(data)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline mean: %w", err)
	}
	variance, err := stats.PopulationVariance(data)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline variance: %w", err)
	}

	pcts := make(map[int]float64, len(baselinePercentiles))
	for _, p := range baselinePercentiles {
		v, err := stats.Percentile(data, float64(p))
		if err != nil {
			// Percentile needs more than one sample for the tails;
			// fall back to the only value we have.
			v = window[0]
		}
		pcts[p] = v
	}

	return Baseline{
		Index:       index,
		Window:      cfg.Window,
		SampleCount: len(window),
		Mean:        mean,
		StdDev:      math.Sqrt(variance),
		Percentiles: pcts,
	}, nil
}
