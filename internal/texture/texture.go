// Package texture computes local angular-dispersion ("texture") fields from
// radar measurements and estimates the noise/signal separation threshold from
// a texture histogram. Texture is the primary coherence indicator used by the
// gate quality filter: coherent weather returns have low phase texture while
// noise and clutter have high texture.
package texture

import (
	"math"

	"github.com/zssherman/cpol-processing/internal/radar"
)

// BoundaryMode selects how the azimuthal window behaves at the first and last
// ray of a sweep.
type BoundaryMode int

const (
	// WrapAzimuth treats ray 0 and the last ray of a sweep as neighbours,
	// which is correct for full 360-degree PPI sweeps.
	WrapAzimuth BoundaryMode = iota
	// ClampAzimuth truncates the window at sweep edges, for sector scans.
	ClampAzimuth
)

// Angular computes the circular standard deviation of src over a square
// (2*halfWidth+1)^2 neighbourhood, per sweep. Values are mapped onto the unit
// circle using interval as the full period, so a field wrapping at interval
// (differential phase, folded velocity) produces small texture inside
// coherent regions even across the fold.
//
// Range edges always clamp; the azimuth boundary wraps or clamps per mode.
// Gates holding NaN contribute nothing; a gate whose whole window is NaN
// yields NaN. The function is pure and deterministic.
func Angular(vol *radar.Volume, src *radar.Field, halfWidth int, interval float64, mode BoundaryMode) *radar.Field {
	out := radar.NewField(src.Name+"_texture", src.NRays, src.NGates)
	out.Units = src.Units
	out.StandardName = "texture_of_" + src.StandardName
	out.Description = "Angular texture computed over a local azimuth/range window."

	if interval <= 0 {
		return out
	}
	scale := 2 * math.Pi / interval

	for _, sweep := range vol.Sweeps {
		angularSweep(out, src, sweep, halfWidth, scale, interval, mode)
	}
	return out
}

// Velocity computes the angular texture of a Doppler velocity field, using
// the volume's full Nyquist co-interval as the wrap period so a fold boundary
// does not read as texture.
func Velocity(vol *radar.Volume, velName string, halfWidth int) (*radar.Field, error) {
	vel, err := vol.Field(velName)
	if err != nil {
		return nil, err
	}
	nyquist, err := vol.EnsureNyquist(velName)
	if err != nil {
		return nil, err
	}
	return Angular(vol, vel, halfWidth, 2*nyquist, WrapAzimuth), nil
}

func angularSweep(out, src *radar.Field, sweep radar.Sweep, halfWidth int, scale, interval float64, mode BoundaryMode) {
	nRays := sweep.NRays()
	nGates := src.NGates

	for r := 0; r < nRays; r++ {
		for g := 0; g < nGates; g++ {
			var sumSin, sumCos float64
			var n int

			for dr := -halfWidth; dr <= halfWidth; dr++ {
				rr := r + dr
				if mode == WrapAzimuth {
					rr = ((rr % nRays) + nRays) % nRays
				} else if rr < 0 || rr >= nRays {
					continue
				}
				row := (sweep.Start + rr) * nGates

				for dg := -halfWidth; dg <= halfWidth; dg++ {
					gg := g + dg
					if gg < 0 || gg >= nGates {
						continue
					}
					v := src.Data[row+gg]
					if math.IsNaN(v) {
						continue
					}
					a := v * scale
					sumSin += math.Sin(a)
					sumCos += math.Cos(a)
					n++
				}
			}

			idx := (sweep.Start+r)*nGates + g
			if n == 0 {
				out.Data[idx] = math.NaN()
				continue
			}
			// Mean resultant length; dispersion via the circular standard
			// deviation sqrt(-2 ln R), rescaled back to field units.
			resultant := math.Hypot(sumSin/float64(n), sumCos/float64(n))
			if resultant >= 1 {
				out.Data[idx] = 0
				continue
			}
			if resultant < 1e-12 {
				resultant = 1e-12
			}
			out.Data[idx] = math.Sqrt(-2*math.Log(resultant)) * interval / (2 * math.Pi)
		}
	}
}
