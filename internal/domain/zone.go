package domain

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb"
)

// ZoneConfig controls management-zone classification.
type ZoneConfig struct {
	// ZoneCount is the target number of percentile bands (typically 3-5).
	ZoneCount int
	// MinSamples is the sample count below which zoning degrades to a
	// single default zone instead of a percentile partition.
	MinSamples int
}

// ClassifyZones partitions a field's spatial index samples into contiguous
// percentile rank bands. Rank 1 is the lowest-productivity band. Samples
// tied at a band boundary are resolved by value (boundary values fall into
// the lower band), so the partition is deterministic for a given input.
//
// With no samples at all it returns ErrDegenerateInput. With fewer than
// MinSamples, or zero value variance, there is no statistically meaningful
// partition and the whole field becomes one default zone.
func ClassifyZones(fieldID string, samples []SpatialSample, cfg ZoneConfig) ([]Zone, error) {
	if cfg.ZoneCount < 2 {
		return nil, fmt.Errorf("zone count must be at least 2, got %d", cfg.ZoneCount)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples for field %s: %w", fieldID, ErrDegenerateInput)
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	if len(samples) < cfg.MinSamples || allEqual(values) {
		return []Zone{buildZone(fieldID, 1, samples)}, nil
	}

	// Percentile band boundaries, e.g. quintile cut points for 5 zones.
	data := stats.Float64Data(values)
	boundaries := make([]float64, 0, cfg.ZoneCount-1)
	for i := 1; i < cfg.ZoneCount; i++ {
		b, err := stats.Percentile(data, float64(i)*100/float64(cfg.ZoneCount))
		if err != nil {
			return nil, fmt.Errorf("zone percentile: %w", err)
		}
		boundaries = append(boundaries, b)
	}

	bands := make([][]SpatialSample, cfg.ZoneCount)
	for _, s := range samples {
		bands[bandFor(s.Value, boundaries)] = append(bands[bandFor(s.Value, boundaries)], s)
	}

	// Ties can empty a band; surviving bands are re-ranked 1..N so the
	// zone set still partitions the field without gaps.
	zones := make([]Zone, 0, cfg.ZoneCount)
	rank := 1
	for _, band := range bands {
		if len(band) == 0 {
			continue
		}
		zones = append(zones, buildZone(fieldID, rank, band))
		rank++
	}
	return zones, nil
}

// bandFor returns the band index containing v. Values equal to a boundary
// belong to the band below it.
func bandFor(v float64, boundaries []float64) int {
	for i, b := range boundaries {
		if v <= b {
			return i
		}
	}
	return len(boundaries)
}

func buildZone(fieldID string, rank int, members []SpatialSample) Zone {
	// Deterministic member order regardless of input order.
	sorted := make([]SpatialSample, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		if sorted[i].Point[0] != sorted[j].Point[0] {
			return sorted[i].Point[0] < sorted[j].Point[0]
		}
		return sorted[i].Point[1] < sorted[j].Point[1]
	})

	points := make(orb.MultiPoint, len(sorted))
	sum, minV, maxV := 0.0, sorted[0].Value, sorted[0].Value
	var ndwiSum float64
	ndwiCount := 0
	for i, s := range sorted {
		points[i] = s.Point
		sum += s.Value
		if s.Value < minV {
			minV = s.Value
		}
		if s.Value > maxV {
			maxV = s.Value
		}
		if s.NDWI != nil {
			ndwiSum += *s.NDWI
			ndwiCount++
		}
	}

	z := Zone{
		ID:          fmt.Sprintf("%s-z%d", fieldID, rank),
		Rank:        rank,
		Extent:      points.Bound(),
		Points:      points,
		SampleCount: len(sorted),
		Mean:        sum / float64(len(sorted)),
		Min:         minV,
		Max:         maxV,
	}
	if ndwiCount > 0 {
		mean := ndwiSum / float64(ndwiCount)
		z.MeanNDWI = &mean
	}
	return z
}

func allEqual(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
