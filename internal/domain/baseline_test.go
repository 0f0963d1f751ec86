package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBaseline(t *testing.T) {
	t.Run("mean and population std dev", func(t *testing.T) {
		b, err := ComputeBaseline(IndexNDVI, []float64{1, 2, 3, 4, 5}, BaselineConfig{Window: 10})
		require.NoError(t, err)

		assert.Equal(t, IndexNDVI, b.Index)
		assert.Equal(t, 10, b.Window)
		assert.Equal(t, 5, b.SampleCount)
		assert.InDelta(t, 3.0, b.Mean, 1e-9)
		assert.InDelta(t, math.Sqrt(2), b.StdDev, 1e-9)
	})

	t.Run("percentile table is complete and ordered", func(t *testing.T) {
		b, err := ComputeBaseline(IndexNDVI, []float64{1, 2, 3, 4, 5}, BaselineConfig{Window: 10})
		require.NoError(t, err)

		require.Len(t, b.Percentiles, 5)
		prev := math.Inf(-1)
		for _, p := range []int{10, 25, 50, 75, 90} {
			v, ok := b.Percentiles[p]
			require.True(t, ok, "missing percentile %d", p)
			assert.GreaterOrEqual(t, v, prev, "percentile %d out of order", p)
			assert.GreaterOrEqual(t, v, 1.0)
			assert.LessOrEqual(t, v, 5.0)
			prev = v
		}
	})

	t.Run("only the trailing window is summarized", func(t *testing.T) {
		values := []float64{100, 100, 0.6, 0.6, 0.6, 0.6}
		b, err := ComputeBaseline(IndexNDVI, values, BaselineConfig{Window: 4})
		require.NoError(t, err)

		assert.Equal(t, 4, b.SampleCount)
		assert.InDelta(t, 0.6, b.Mean, 1e-9)
		assert.InDelta(t, 0.0, b.StdDev, 1e-9)
	})

	t.Run("single value falls back for tail percentiles", func(t *testing.T) {
		b, err := ComputeBaseline(IndexNDVI, []float64{0.42}, BaselineConfig{Window: 10})
		require.NoError(t, err)

		assert.Equal(t, 1, b.SampleCount)
		assert.InDelta(t, 0.42, b.Mean, 1e-9)
		for p, v := range b.Percentiles {
			assert.InDelta(t, 0.42, v, 1e-9, "percentile %d", p)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		_, err := ComputeBaseline(IndexNDVI, nil, BaselineConfig{Window: 10})
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := ComputeBaseline(IndexNDVI, []float64{0.5}, BaselineConfig{Window: 0})
		assert.ErrorContains(t, err, "window must be positive")
	})
}
