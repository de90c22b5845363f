package texture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bimodal builds a texture population with a coherent lobe and a noise lobe.
func bimodal(loCentre, hiCentre, halfSpread float64, n int) []float64 {
	values := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		frac := (float64(i)/float64(n) - 0.5) * 2 // [-1, 1)
		values = append(values, loCentre+frac*halfSpread, hiCentre+frac*halfSpread)
	}
	return values
}

func TestEstimateNoiseSeparatesModes(t *testing.T) {
	values := bimodal(12, 45, 3, 500)

	threshold, err := EstimateNoise(values, 5, 90, DefaultHistogramBins)
	require.NoError(t, err)
	assert.Greater(t, threshold, 14.0)
	assert.Less(t, threshold, 42.0)
}

func TestEstimateNoiseSingleModeFails(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = 20
	}

	_, err := EstimateNoise(values, 5, 90, DefaultHistogramBins)
	assert.ErrorIs(t, err, ErrNoiseOnly)
}

func TestEstimateNoiseFlatHistogramFails(t *testing.T) {
	// Exactly uniform: four values at each bin centre.
	lo, hi := 5.0, 90.0
	width := (hi - lo) / float64(DefaultHistogramBins)
	var values []float64
	for i := 0; i < DefaultHistogramBins; i++ {
		centre := lo + (float64(i)+0.5)*width
		values = append(values, centre, centre, centre, centre)
	}

	_, err := EstimateNoise(values, lo, hi, DefaultHistogramBins)
	assert.ErrorIs(t, err, ErrNoiseOnly)
}

func TestEstimateNoiseEmptyInputFails(t *testing.T) {
	_, err := EstimateNoise(nil, 5, 90, DefaultHistogramBins)
	assert.ErrorIs(t, err, ErrNoiseOnly)

	// All values outside the histogram range.
	_, err = EstimateNoise([]float64{1, 2, 3, 200}, 5, 90, DefaultHistogramBins)
	assert.ErrorIs(t, err, ErrNoiseOnly)
}

func TestEstimateNoiseDegenerateBounds(t *testing.T) {
	_, err := EstimateNoise([]float64{1, 2}, 10, 10, DefaultHistogramBins)
	assert.ErrorIs(t, err, ErrNoiseOnly)

	_, err = EstimateNoise([]float64{1, 2}, 5, 90, 1)
	assert.ErrorIs(t, err, ErrNoiseOnly)
}

func TestEstimateNoiseScalesWithInput(t *testing.T) {
	values := bimodal(12, 45, 3, 500)

	base, err := EstimateNoise(values, 5, 90, DefaultHistogramBins)
	require.NoError(t, err)

	const c = 2.5
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * c
	}
	got, err := EstimateNoise(scaled, 5*c, 90*c, DefaultHistogramBins)
	require.NoError(t, err)

	assert.InDelta(t, base*c, got, 1e-9)
}

func TestEstimateNoiseIsDeterministic(t *testing.T) {
	values := bimodal(15, 60, 5, 300)

	first, err := EstimateNoise(values, 5, 90, DefaultHistogramBins)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := EstimateNoise(values, 5, 90, DefaultHistogramBins)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
