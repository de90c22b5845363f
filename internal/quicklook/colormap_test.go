package quicklook

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileBoundsIgnoresOutliers(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i % 50)
	}
	values[0] = 1e9
	values[1] = math.NaN()

	bounds := PercentileBounds(values)
	assert.Less(t, bounds.Max, 100.0)
	assert.Greater(t, bounds.Max, bounds.Min)
}

func TestPercentileBoundsDegenerateInput(t *testing.T) {
	bounds := PercentileBounds([]float64{1, 2, 3})
	assert.Equal(t, ValueBounds{Min: -1, Max: 1}, bounds)

	constant := make([]float64, 100)
	for i := range constant {
		constant[i] = 7
	}
	bounds = PercentileBounds(constant)
	assert.Greater(t, bounds.Max, bounds.Min)
}

func TestColorMapperClampsAtBounds(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, ValueBounds{Min: 0, Max: 10})

	assert.Equal(t, cm.Color(0), cm.Color(-100))
	assert.Equal(t, cm.Color(10), cm.Color(100))
	assert.NotEqual(t, cm.Color(0), cm.Color(10))
}

func TestHSVPrimaryHues(t *testing.T) {
	red := HSV{H: 0, S: 1, V: 1}.RGB().(color.RGBA)
	assert.Equal(t, uint8(255), red.R)
	assert.Equal(t, uint8(0), red.B)

	blue := HSV{H: 240, S: 1, V: 1}.RGB().(color.RGBA)
	assert.Equal(t, uint8(255), blue.B)
	assert.Equal(t, uint8(0), blue.R)

	gray := HSV{H: 0, S: 0, V: 0.5}.RGB().(color.RGBA)
	assert.Equal(t, gray.R, gray.G)
	assert.Equal(t, gray.G, gray.B)
}
