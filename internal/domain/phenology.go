package domain

import "time"

// PhenologyConfig controls growth-stage inference.
type PhenologyConfig struct {
	// MinPoints is the minimum series length to stage at all.
	MinPoints int
	// PeakProximity is the fraction of the running maximum at and above
	// which a low-slope series counts as flowering/peak.
	PeakProximity float64
	// LowFraction locates the "near baseline" threshold inside the
	// series' value range.
	LowFraction float64
	// HarvestDropDelta is the minimum drop from peak for a terminal
	// drop to read as harvested.
	HarvestDropDelta float64
}

// recentWindow is how many trailing points feed the local slope estimate.
const recentWindow = 4

// StagePhenology infers the crop growth stage from the shape of the
// current cycle's smoothed series relative to its running maximum.
//
// Rising toward the maximum is emergence or vegetative, near-maximum with
// low slope is flowering/peak, declining from near-maximum is maturity then
// senescence, and a sharp terminal drop back to baseline after an elevated
// stretch is harvested. With fewer than MinPoints the result is
// StageInsufficientData rather than a guess.
func StagePhenology(s SmoothedSeries, cfg PhenologyConfig) PhenologyResult {
	n := len(s.Points)
	if n < cfg.MinPoints {
		return PhenologyResult{Stage: StageInsufficientData}
	}

	values := s.Values()
	peak, peakIdx := values[0], 0
	minV := values[0]
	for i, v := range values {
		if v > peak {
			peak, peakIdx = v, i
		}
		if v < minV {
			minV = v
		}
	}
	valueRange := peak - minV
	lowThreshold := minV + cfg.LowFraction*valueRange
	last := values[n-1]
	recent := recentSlope(s)

	result := PhenologyResult{
		PeakValue: peak,
		PeakDate:  timePtr(s.Points[peakIdx].Date),
	}
	if idx := seasonStartIdx(values, lowThreshold); idx >= 0 {
		result.SeasonStart = timePtr(s.Points[idx].Date)
	}

	terminalDrop := values[n-1] < values[max(0, n-2)] &&
		peak-last >= cfg.HarvestDropDelta

	switch {
	case peakIdx < n-1 && last <= lowThreshold && terminalDrop:
		result.Stage = StageHarvested
		result.SeasonEnd = timePtr(s.Points[n-1].Date)
	case last >= cfg.PeakProximity*peak && abs(recent) < 0.005:
		result.Stage = StagePeak
	case recent > 0 && last <= lowThreshold:
		result.Stage = StageEmergence
	case recent >= 0:
		result.Stage = StageVegetative
	case last >= 0.6*peak:
		result.Stage = StageMaturity
	default:
		result.Stage = StageSenescence
	}

	result.DaysInStage = daysInStage(s, result.Stage, lowThreshold)
	return result
}

// recentSlope estimates the per-day slope over the trailing points.
func recentSlope(s SmoothedSeries) float64 {
	n := len(s.Points)
	lo := max(0, n-recentWindow)
	window := s.Points[lo:]
	if len(window) < 2 {
		return 0
	}
	days := window[len(window)-1].Date.Sub(window[0].Date).Hours() / 24
	if days <= 0 {
		return 0
	}
	return (window[len(window)-1].Value - window[0].Value) / days
}

// seasonStartIdx finds the first point that rises above the baseline
// threshold and stays up, a rough start-of-season estimate.
func seasonStartIdx(values []float64, lowThreshold float64) int {
	for i, v := range values {
		if v > lowThreshold {
			return i
		}
	}
	return -1
}

// daysInStage walks the trailing points that are still consistent with the
// inferred stage and reports the elapsed days across that run. It is an
// estimate; sparse cadence widens the error.
func daysInStage(s SmoothedSeries, stage Stage, lowThreshold float64) int {
	n := len(s.Points)
	start := n - 1
	for i := n - 1; i > 0; i-- {
		diff := s.Points[i].Value - s.Points[i-1].Value
		consistent := false
		switch stage {
		case StageEmergence, StageVegetative:
			consistent = diff >= 0
		case StagePeak:
			consistent = abs(diff) < 0.05
		case StageMaturity, StageSenescence:
			consistent = diff <= 0
		case StageHarvested:
			consistent = s.Points[i].Value <= lowThreshold
		}
		if !consistent {
			break
		}
		start = i - 1
	}
	days := s.Points[n-1].Date.Sub(s.Points[start].Date).Hours() / 24
	return int(days)
}

func timePtr(t time.Time) *time.Time { return &t }
