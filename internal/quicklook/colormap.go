// Package quicklook renders a single sweep of a processed volume as a PPI
// (plan position indicator) raster image for visual inspection.
package quicklook

import (
	"image/color"
	"math"
	"sort"
)

// ColorTheme selects a predefined color scheme for field visualization.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // black to white transition
	ThermalTheme   ColorTheme = "thermal"   // black to red to yellow to white

	defaultColorMapSize = 256
)

// ValueBounds is the value range mapped onto the color scale.
type ValueBounds struct {
	Min float64
	Max float64
}

// PercentileBounds derives display bounds from the 5th and 95th percentile of
// the finite values, padded by ten percent, so a handful of outlier gates
// cannot wash out the whole image.
func PercentileBounds(values []float64) ValueBounds {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < 20 {
		return ValueBounds{Min: -1, Max: 1}
	}
	sort.Float64s(finite)

	lo := finite[len(finite)*5/100]
	hi := finite[len(finite)*95/100]
	if hi-lo < 1e-9 {
		lo, hi = lo-1, hi+1
	}
	margin := (hi - lo) * 0.1
	return ValueBounds{Min: lo - margin, Max: hi + margin}
}

// ColorMapper maps field values onto a pre-computed color gradient.
type ColorMapper struct {
	colorMap    []color.Color
	themeName   ColorTheme
	boundsMin   float64
	valuePerIdx float64
}

// NewColorMapper builds a mapper for the theme over the given bounds.
func NewColorMapper(theme ColorTheme, bounds ValueBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap:  make([]color.Color, defaultColorMapSize),
		themeName: theme,
	}
	paint := themeFunc(theme)
	for i := range cm.colorMap {
		cm.colorMap[i] = paint(float64(i) / float64(defaultColorMapSize-1))
	}
	cm.boundsMin = bounds.Min
	cm.valuePerIdx = (bounds.Max - bounds.Min) / float64(defaultColorMapSize-1)
	return cm
}

// Color returns the gradient color for a value, clamped at the bounds.
func (cm *ColorMapper) Color(v float64) color.Color {
	idx := int((v - cm.boundsMin) / cm.valuePerIdx)
	if idx < 0 {
		return cm.colorMap[0]
	}
	if idx >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[idx]
}

// ThemeName returns the mapper's theme.
func (cm *ColorMapper) ThemeName() ColorTheme { return cm.themeName }

// HSV represents a color in HSV (Hue, Saturation, Value) color space.
type HSV struct {
	H float64 // hue angle in degrees [0-360]
	S float64 // saturation [0-1]
	V float64 // value/brightness [0-1]
}

// RGB converts HSV to RGB color space.
func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := hsv.H
	if h >= 360 {
		h -= 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func themeFunc(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(x float64) color.Color {
			v := uint8(math.Pow(x, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThermalTheme:
		return func(x float64) color.Color {
			if x < 0.33 {
				return color.RGBA{R: uint8((x * 3) * 255), A: 255}
			}
			if x < 0.66 {
				return color.RGBA{R: 255, G: uint8(((x - 0.33) * 3) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(((x - 0.66) * 3) * 255), A: 255}
		}

	default: // ClassicTheme
		return func(x float64) color.Color {
			return HSV{
				H: 240 - (x * 240),
				S: 0.9 + (x * 0.1),
				V: math.Pow(x, 0.7),
			}.RGB()
		}
	}
}
