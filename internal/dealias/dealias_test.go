package dealias

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zssherman/cpol-processing/internal/gatefilter"
	"github.com/zssherman/cpol-processing/internal/radar"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// velocityVolume builds a single-sweep volume with a VEL field whose value at
// (ray, gate) comes from valueAt.
func velocityVolume(nRays, nGates int, nyquist float64, valueAt func(r, g int) float64) *radar.Volume {
	az := make([]float64, nRays)
	for i := range az {
		az[i] = float64(i) * 360 / float64(nRays)
	}
	vol := &radar.Volume{
		NRays:           nRays,
		NGates:          nGates,
		Azimuth:         az,
		Sweeps:          []radar.Sweep{{Start: 0, End: nRays}},
		NyquistVelocity: nyquist,
		Fields:          make(map[string]*radar.Field),
	}
	vel := radar.NewField("VEL", nRays, nGates)
	for r := 0; r < nRays; r++ {
		for g := 0; g < nGates; g++ {
			vel.Set(r, g, valueAt(r, g))
		}
	}
	vol.AddField(vel)
	return vol
}

func TestDealiasUnfoldsAdjacentRegion(t *testing.T) {
	// Inner gates move at 8 m/s; outer gates truly move at 11 m/s but fold to
	// -9 with a 10 m/s Nyquist. The outer region must be lifted by one full
	// interval.
	vol := velocityVolume(8, 8, 10, func(r, g int) float64 {
		if g < 4 {
			return 8
		}
		return -9
	})
	gf := gatefilter.New(8, 8)

	res, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)
	require.Empty(t, res.FallbackSweeps)

	for r := 0; r < 8; r++ {
		for g := 0; g < 8; g++ {
			if g < 4 {
				assert.Equal(t, 8.0, res.Field.At(r, g))
			} else {
				assert.Equal(t, 11.0, res.Field.At(r, g))
			}
		}
	}
	assert.Equal(t, 10.0, res.Field.NyquistVelocity)
}

func TestDealiasWrappedRegionGetsOneOffset(t *testing.T) {
	// The folded region straddles the azimuthal boundary: rays 0 and 7. With
	// wraparound adjacency it is a single region and receives one offset.
	vol := velocityVolume(8, 8, 10, func(r, g int) float64 {
		if r == 0 || r == 7 {
			return -9
		}
		return 8
	})
	gf := gatefilter.New(8, 8)

	res, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)
	require.Empty(t, res.FallbackSweeps)

	for g := 0; g < 8; g++ {
		assert.Equal(t, 11.0, res.Field.At(0, g))
		assert.Equal(t, 11.0, res.Field.At(7, g))
		assert.Equal(t, 8.0, res.Field.At(3, g))
	}
}

func TestDealiasIsFixedPointOnUnfoldedInput(t *testing.T) {
	vol := velocityVolume(8, 8, 10, func(r, g int) float64 {
		if g < 4 {
			return 8
		}
		return -9
	})
	gf := gatefilter.New(8, 8)

	first, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)

	// Feed the corrected field back in as the raw velocity.
	again := velocityVolume(8, 8, 10, func(r, g int) float64 {
		return first.Field.At(r, g)
	})
	second, err := Dealias(again, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, first.Field.Data, second.Field.Data)
}

func TestDealiasMaskedGatesStayNaN(t *testing.T) {
	vol := velocityVolume(4, 4, 10, func(r, g int) float64 { return 5 })
	gf := gatefilter.New(4, 4)
	gf.Exclude(1, 2)

	res, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)

	assert.True(t, math.IsNaN(res.Field.At(1, 2)))
	assert.Equal(t, 5.0, res.Field.At(0, 0))
}

func TestDealiasFullyMaskedSweep(t *testing.T) {
	vol := velocityVolume(4, 4, 10, func(r, g int) float64 { return 5 })
	gf := gatefilter.New(4, 4)
	for r := 0; r < 4; r++ {
		for g := 0; g < 4; g++ {
			gf.Exclude(r, g)
		}
	}

	res, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)
	assert.Empty(t, res.FallbackSweeps)
	for _, v := range res.Field.Data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestDealiasRunawayOffsetFallsBackPerRay(t *testing.T) {
	// A boundary discontinuity of over a hundred intervals trips the
	// propagation sanity bound; the sweep degrades to per-ray unfolding,
	// which pulls the bogus gates back near their neighbours.
	vol := velocityVolume(8, 8, 10, func(r, g int) float64 {
		if g < 4 {
			return -9
		}
		return 2011
	})
	gf := gatefilter.New(8, 8)

	res, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	require.NoError(t, err)
	require.Equal(t, []int{0}, res.FallbackSweeps)

	for r := 0; r < 8; r++ {
		for g := 0; g < 8; g++ {
			assert.Equal(t, -9.0, res.Field.At(r, g))
		}
	}
}

func TestDealiasMissingVelocityField(t *testing.T) {
	vol := velocityVolume(4, 4, 10, func(r, g int) float64 { return 1 })
	vol.RemoveField("VEL")
	gf := gatefilter.New(4, 4)

	_, err := Dealias(vol, gf, "VEL", DefaultOptions(), discardLogger())
	assert.ErrorIs(t, err, radar.ErrPreconditionViolation)
}

func TestUnfoldSweepByRayKeepsContinuity(t *testing.T) {
	// One ray, consecutive gates folding once: 9 -> -9 is closer to 11 than
	// to -9 given the previous gate.
	vel := []float64{9, -9, -8, 9}
	excluded := make([]bool, 4)
	out := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}

	unfoldSweepByRay(vel, excluded, 1, 4, 10, out)

	assert.Equal(t, []float64{9, 11, 12, 9}, out)
}
