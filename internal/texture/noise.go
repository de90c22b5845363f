package texture

import (
	"errors"
	"math"
)

// ErrNoiseOnly reports that the texture histogram holds no resolvable signal
// mode: peak finding found fewer than two modes at every candidate width.
// Callers recover by degrading to a stricter static threshold policy.
var ErrNoiseOnly = errors.New("texture histogram has no resolvable signal peaks")

const (
	// DefaultHistogramBins is the fixed bin count of the texture histogram.
	DefaultHistogramBins = 150
	// maxPeakWidth is the widest matched-filter kernel tried, in bins.
	// Widths are scanned downward from here until two modes resolve.
	maxPeakWidth = 10
)

// EstimateNoise separates a texture histogram into a noise lobe and a signal
// lobe and returns the threshold between them: the centre of the emptiest bin
// ("valley") between the first two histogram modes.
//
// The histogram is built over [lo, hi) with the given bin count; values
// outside the range or NaN are ignored. Modes are located with a matched
// (Ricker wavelet) filter scanned over decreasing candidate widths, so a
// narrow and a broad lobe are both found. The procedure is deterministic:
// no sampling, fixed scan order, ties resolved to the lowest bin.
func EstimateNoise(values []float64, lo, hi float64, bins int) (float64, error) {
	if bins <= 2 || hi <= lo {
		return 0, ErrNoiseOnly
	}

	counts := make([]float64, bins)
	width := (hi - lo) / float64(bins)
	var total int
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v >= hi {
			continue
		}
		counts[int((v-lo)/width)]++
		total++
	}
	if total == 0 {
		return 0, ErrNoiseOnly
	}

	var peaks []int
	for w := maxPeakWidth; w >= 1; w-- {
		peaks = findPeaks(counts, w)
		if len(peaks) >= 2 {
			break
		}
	}
	if len(peaks) < 2 {
		return 0, ErrNoiseOnly
	}

	// Valley: the least-populated bin strictly between the two modes.
	valley := peaks[0]
	for i := peaks[0]; i <= peaks[1]; i++ {
		if counts[i] < counts[valley] {
			valley = i
		}
	}
	return lo + (float64(valley)+0.5)*width, nil
}

// findPeaks convolves the histogram with a Ricker wavelet of the given width
// and returns indices of positive local maxima of the response, at least
// width bins apart, in ascending index order.
func findPeaks(counts []float64, width int) []int {
	response := rickerResponse(counts, width)

	var peaks []int
	for i := range response {
		if response[i] <= 0 {
			continue
		}
		if i > 0 && response[i-1] >= response[i] {
			continue
		}
		if i < len(response)-1 && response[i+1] > response[i] {
			continue
		}
		if len(peaks) > 0 && i-peaks[len(peaks)-1] < width {
			// Keep the stronger of two crowding peaks.
			if response[i] > response[peaks[len(peaks)-1]] {
				peaks[len(peaks)-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// rickerResponse is the matched-filter response of counts against a Ricker
// ("Mexican hat") wavelet of scale a. The wavelet is zero-mean and the
// histogram is mirror-padded, so a flat histogram yields a flat response
// with no local maxima.
func rickerResponse(counts []float64, a int) []float64 {
	support := 5 * a
	kernel := make([]float64, 2*support+1)
	for t := -support; t <= support; t++ {
		x := float64(t) / float64(a)
		kernel[t+support] = (1 - x*x) * math.Exp(-x*x/2)
	}

	n := len(counts)
	mirrored := func(j int) float64 {
		for j < 0 || j >= n {
			if j < 0 {
				j = -j - 1
			}
			if j >= n {
				j = 2*n - 1 - j
			}
		}
		return counts[j]
	}

	out := make([]float64, n)
	for i := range counts {
		var acc float64
		for t := -support; t <= support; t++ {
			acc += mirrored(i+t) * kernel[t+support]
		}
		out[i] = acc
	}
	return out
}
