package gatefilter

import (
	"log/slog"

	"github.com/zssherman/cpol-processing/internal/radar"
	"github.com/zssherman/cpol-processing/internal/texture"
)

// Physical acceptance ranges for the quality fields. Gates outside them are
// measurement artefacts, not weather.
const (
	zdrMin = -3.0 // dB
	zdrMax = 7.0  // dB

	reflMin = -40.0 // dBZ
	reflMax = 80.0  // dBZ

	rhohvFloor = 0.5
	// rhohvNoiseFallbackFloor replaces the texture inclusion rule when the
	// noise threshold cannot be estimated (volume is pure noise).
	rhohvNoiseFallbackFloor = 0.8
)

const (
	// phaseTextureWindow is the half-width of the differential-phase texture
	// neighbourhood, in gates.
	phaseTextureWindow = 4
	// textureThresholdMargin widens the estimated noise threshold before it
	// is used as an inclusion bound.
	textureThresholdMargin = 1.25
	// textureHistogramLo / textureHistogramHi bound the texture histogram
	// handed to the noise threshold estimator, in degrees.
	textureHistogramLo = 5.0
	textureHistogramHi = 90.0

	// SpeckleMinSize is the smallest connected cluster of included gates that
	// survives the despeckle pass. Isolated smaller clusters are noise.
	SpeckleMinSize = 10
)

// Build produces the volume's quality mask from its reflectivity,
// differential phase, cross-correlation ratio and differential reflectivity
// fields. The volume is not mutated; the intermediate phase-texture field
// never leaves this function.
//
// A missing source field is a fatal precondition violation. A texture
// histogram with no resolvable signal lobe is recovered locally by tightening
// the cross-correlation floor and skipping the texture inclusion rule.
func Build(vol *radar.Volume, logger *slog.Logger, reflName, phidpName, rhohvName, zdrName string) (*GateFilter, error) {
	zdr, err := vol.Field(zdrName)
	if err != nil {
		return nil, err
	}
	refl, err := vol.Field(reflName)
	if err != nil {
		return nil, err
	}
	rhohv, err := vol.Field(rhohvName)
	if err != nil {
		return nil, err
	}
	phidp, err := vol.Field(phidpName)
	if err != nil {
		return nil, err
	}

	gf := New(vol.NRays, vol.NGates)
	if err := gf.ExcludeOutside(zdr, zdrMin, zdrMax); err != nil {
		return nil, err
	}
	if err := gf.ExcludeOutside(refl, reflMin, reflMax); err != nil {
		return nil, err
	}
	if err := gf.ExcludeBelow(rhohv, rhohvFloor); err != nil {
		return nil, err
	}

	phaseTexture := texture.Angular(vol, phidp, phaseTextureWindow, phidp.MaxAbs(), texture.WrapAzimuth)
	threshold, err := texture.EstimateNoise(phaseTexture.Data, textureHistogramLo, textureHistogramHi, texture.DefaultHistogramBins)
	switch {
	case err == nil:
		if err := gf.IncludeBelow(phaseTexture, threshold*textureThresholdMargin); err != nil {
			return nil, err
		}
	default:
		// Only noise in volume: no texture rule, stricter correlation floor.
		logger.Warn("noise threshold estimation failed, tightening correlation floor",
			slog.String("reason", err.Error()),
			slog.Float64("floor", rhohvNoiseFallbackFloor))
		if err := gf.ExcludeBelow(rhohv, rhohvNoiseFallbackFloor); err != nil {
			return nil, err
		}
	}

	despeckle(vol, gf, SpeckleMinSize)
	return gf, nil
}

// despeckle excludes connected clusters of included gates smaller than
// minSize, per sweep. Connectivity is 4-neighbour within the sweep.
func despeckle(vol *radar.Volume, gf *GateFilter, minSize int) {
	nGates := vol.NGates
	visited := make([]bool, vol.NRays*nGates)
	var stack, cluster []int

	for _, sweep := range vol.Sweeps {
		for r := sweep.Start; r < sweep.End; r++ {
			for g := 0; g < nGates; g++ {
				start := r*nGates + g
				if visited[start] || gf.excluded[start] {
					continue
				}

				// Flood fill the cluster of included gates.
				stack = append(stack[:0], start)
				cluster = cluster[:0]
				visited[start] = true
				for len(stack) > 0 {
					idx := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					cluster = append(cluster, idx)

					ray, gate := idx/nGates, idx%nGates
					neighbors := [4]int{-1, -1, -1, -1}
					if gate > 0 {
						neighbors[0] = idx - 1
					}
					if gate < nGates-1 {
						neighbors[1] = idx + 1
					}
					if ray > sweep.Start {
						neighbors[2] = idx - nGates
					}
					if ray < sweep.End-1 {
						neighbors[3] = idx + nGates
					}
					for _, n := range neighbors {
						if n >= 0 && !visited[n] && !gf.excluded[n] {
							visited[n] = true
							stack = append(stack, n)
						}
					}
				}

				if len(cluster) < minSize {
					for _, idx := range cluster {
						gf.excluded[idx] = true
					}
				}
			}
		}
	}
}
