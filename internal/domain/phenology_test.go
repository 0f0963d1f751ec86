package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phenologyCfg() PhenologyConfig {
	return PhenologyConfig{
		MinPoints:        4,
		PeakProximity:    0.9,
		LowFraction:      0.25,
		HarvestDropDelta: 0.25,
	}
}

func TestStagePhenology(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("short series refuses to guess", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.3, 0.4, 0.5})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageInsufficientData, result.Stage)
		assert.Nil(t, result.PeakDate)
	})

	t.Run("rising canopy is vegetative", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.2, 0.3, 0.4, 0.5, 0.6})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageVegetative, result.Stage)
		assert.Equal(t, 0.6, result.PeakValue)
	})

	t.Run("rising from baseline after a past cycle is emergence", func(t *testing.T) {
		// The old cycle's peak dominates the range; the new growth is still
		// below the low threshold but climbing.
		s := smoothedDaily(start, []float64{0.50, 0.10, 0.12, 0.15, 0.18})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageEmergence, result.Stage)
	})

	t.Run("flat near the maximum is flowering peak", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.30, 0.50, 0.69, 0.70, 0.705, 0.703})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StagePeak, result.Stage)
		assert.Equal(t, 0.705, result.PeakValue)
		require.NotNil(t, result.PeakDate)
		assert.Equal(t, start.AddDate(0, 0, 4), *result.PeakDate)
	})

	t.Run("moderate decline from peak is maturity", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.20, 0.60, 0.80, 0.65, 0.55})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageMaturity, result.Stage)
	})

	t.Run("deep decline from peak is senescence", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.20, 0.60, 0.80, 0.60, 0.45})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageSenescence, result.Stage)
	})

	t.Run("sharp terminal drop to baseline is harvested", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.30, 0.60, 0.75, 0.70, 0.35})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageHarvested, result.Stage)
		require.NotNil(t, result.SeasonEnd)
		assert.Equal(t, start.AddDate(0, 0, 4), *result.SeasonEnd)
	})

	t.Run("season start is the first rise above baseline", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.10, 0.12, 0.30, 0.50, 0.60})

		result := StagePhenology(s, phenologyCfg())
		require.NotNil(t, result.SeasonStart)
		assert.Equal(t, start.AddDate(0, 0, 2), *result.SeasonStart)
	})

	t.Run("days in stage tracks the trailing consistent run", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.50, 0.40, 0.20, 0.30, 0.40, 0.50})

		result := StagePhenology(s, phenologyCfg())
		assert.Equal(t, StageVegetative, result.Stage)
		assert.Equal(t, 3, result.DaysInStage, "the rise from day 2 to day 5")
	})
}
