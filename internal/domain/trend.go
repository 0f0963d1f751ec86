package domain

import (
	"fmt"
	"math"
	"time"
)

// TrendConfig controls trend characterization.
type TrendConfig struct {
	// StableSlope is the slope magnitude (index units per day) below
	// which direction is reported stable regardless of sign.
	StableSlope float64
	// BreakpointDelta is the slope change between consecutive
	// sub-windows that marks a regime breakpoint candidate.
	BreakpointDelta float64
	// BreakpointWindow is the sub-window size (points) for breakpoint
	// scanning. Values below 3 are raised to 3.
	BreakpointWindow int
}

// AnalyzeTrend characterizes direction and rate of a smoothed series via
// ordinary least squares of value against time in days. Confidence scales
// the fitted signal against residual scatter and is bounded to [0,1].
// Breakpoints are candidate regime-shift dates, not guaranteed unique.
func AnalyzeTrend(s SmoothedSeries, cfg TrendConfig) (TrendSummary, error) {
	n := len(s.Points)
	if n < 2 {
		return TrendSummary{}, fmt.Errorf("trend needs at least 2 points, have %d: %w",
			n, ErrInsufficientData)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	t0 := s.Points[0].Date
	for i, p := range s.Points {
		xs[i] = p.Date.Sub(t0).Hours() / 24
		ys[i] = p.Value
	}

	slope, intercept := olsFit(xs, ys)

	// Residual standard deviation of the fit.
	var sse float64
	for i := range xs {
		r := ys[i] - (intercept + slope*xs[i])
		sse += r * r
	}
	residStd := math.Sqrt(sse / float64(n))

	// Signal is the total fitted excursion over the window. A noisy fit
	// with little excursion earns low confidence; a clean flat series is
	// a fully confident "stable".
	signal := abs(slope) * xs[n-1]
	var confidence float64
	switch {
	case signal+residStd < 1e-9:
		confidence = 1
	default:
		confidence = signal / (signal + residStd)
	}
	confidence = clamp01(confidence)

	direction := TrendStable
	switch {
	case abs(slope) < cfg.StableSlope:
		direction = TrendStable
	case slope > 0:
		direction = TrendIncreasing
	default:
		direction = TrendDecreasing
	}

	start, end := s.Span()
	return TrendSummary{
		Index:       s.Index,
		WindowStart: start,
		WindowEnd:   end,
		Slope:       slope,
		Direction:   direction,
		Confidence:  confidence,
		Breakpoints: findBreakpoints(s, xs, ys, cfg),
	}, nil
}

// olsFit returns the least-squares slope and intercept of y against x.
func olsFit(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// findBreakpoints scans consecutive sub-windows and reports the boundary
// date wherever the rolling slope flips sign or jumps by more than the
// configured delta.
func findBreakpoints(s SmoothedSeries, xs, ys []float64, cfg TrendConfig) []time.Time {
	w := cfg.BreakpointWindow
	if w < 3 {
		w = 3
	}
	if len(xs) < 2*w {
		return nil
	}

	var breakpoints []time.Time
	prevSlope := math.NaN()
	for start := 0; start+w <= len(xs); start += w {
		slope, _ := olsFit(xs[start:start+w], ys[start:start+w])
		if !math.IsNaN(prevSlope) {
			signFlip := prevSlope*slope < 0 &&
				abs(prevSlope) >= cfg.StableSlope && abs(slope) >= cfg.StableSlope
			if signFlip || abs(slope-prevSlope) > cfg.BreakpointDelta {
				breakpoints = append(breakpoints, s.Points[start].Date)
			}
		}
		prevSlope = slope
	}
	return breakpoints
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
