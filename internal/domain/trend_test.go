package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendCfg() TrendConfig {
	return TrendConfig{StableSlope: 0.005, BreakpointDelta: 0.01, BreakpointWindow: 3}
}

// smoothedDaily builds a smoothed NDVI series with one point per day.
func smoothedDaily(start time.Time, values []float64) SmoothedSeries {
	points := make([]SmoothedPoint, len(values))
	for i, v := range values {
		points[i] = SmoothedPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return SmoothedSeries{Index: IndexNDVI, Points: points}
}

func TestAnalyzeTrend(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("clean increase", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.30, 0.31, 0.32, 0.33, 0.34, 0.35})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)

		assert.Equal(t, TrendIncreasing, trend.Direction)
		assert.InDelta(t, 0.01, trend.Slope, 1e-9)
		assert.InDelta(t, 1.0, trend.Confidence, 1e-9, "a perfect fit is fully confident")
		assert.Equal(t, IndexNDVI, trend.Index)
		assert.Equal(t, start, trend.WindowStart)
		assert.Equal(t, start.AddDate(0, 0, 5), trend.WindowEnd)
	})

	t.Run("clean decrease", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.50, 0.48, 0.46, 0.44, 0.42})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)

		assert.Equal(t, TrendDecreasing, trend.Direction)
		assert.InDelta(t, -0.02, trend.Slope, 1e-9)
	})

	t.Run("flat series is stable with full confidence", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.5, 0.5, 0.5, 0.5, 0.5})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)

		assert.Equal(t, TrendStable, trend.Direction)
		assert.InDelta(t, 0.0, trend.Slope, 1e-9)
		assert.Equal(t, 1.0, trend.Confidence)
	})

	t.Run("sub-threshold slope is stable", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.500, 0.501, 0.502, 0.503, 0.504})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)
		assert.Equal(t, TrendStable, trend.Direction)
	})

	t.Run("noise lowers confidence", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.30, 0.36, 0.29, 0.37, 0.31, 0.38})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)
		assert.Less(t, trend.Confidence, 1.0)
		assert.GreaterOrEqual(t, trend.Confidence, 0.0)
	})

	t.Run("regime flip yields a breakpoint", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.20, 0.25, 0.30, 0.30, 0.25, 0.20})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)

		require.NotEmpty(t, trend.Breakpoints)
		assert.Equal(t, start.AddDate(0, 0, 3), trend.Breakpoints[0])
	})

	t.Run("short series has no breakpoints", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.2, 0.3, 0.25, 0.2, 0.3})

		trend, err := AnalyzeTrend(s, trendCfg())
		require.NoError(t, err)
		assert.Empty(t, trend.Breakpoints)
	})

	t.Run("too few points", func(t *testing.T) {
		s := smoothedDaily(start, []float64{0.5})

		_, err := AnalyzeTrend(s, trendCfg())
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}
