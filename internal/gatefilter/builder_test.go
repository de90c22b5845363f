package gatefilter

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zssherman/cpol-processing/internal/radar"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildVolume returns a volume where gates [0, weatherGates) of every ray are
// plausible weather and the rest are junk the filter must reject.
func buildVolume(nRays, nGates, weatherGates int) *radar.Volume {
	az := make([]float64, nRays)
	for i := range az {
		az[i] = float64(i) * 360 / float64(nRays)
	}
	vol := &radar.Volume{
		NRays:   nRays,
		NGates:  nGates,
		Azimuth: az,
		Sweeps:  []radar.Sweep{{Start: 0, End: nRays}},
		Fields:  make(map[string]*radar.Field),
	}

	dbz := radar.NewField("DBZ", nRays, nGates)
	phidp := radar.NewField("PHIDP", nRays, nGates)
	rhohv := radar.NewField("RHOHV_CORR", nRays, nGates)
	zdr := radar.NewField("ZDR", nRays, nGates)

	for r := 0; r < nRays; r++ {
		for g := 0; g < nGates; g++ {
			i := r*nGates + g
			if g < weatherGates {
				dbz.Data[i] = 30
				phidp.Data[i] = 45 + 2*float64(i%2) // mild wobble, coherent
				rhohv.Data[i] = 0.99
				zdr.Data[i] = 0.5
			} else {
				dbz.Data[i] = 20
				phidp.Data[i] = math.Mod(float64(i)*137.5, 360) - 180
				rhohv.Data[i] = 0.2
				zdr.Data[i] = 9
			}
		}
	}

	vol.AddField(dbz)
	vol.AddField(phidp)
	vol.AddField(rhohv)
	vol.AddField(zdr)
	return vol
}

func TestBuildKeepsWeatherRejectsJunk(t *testing.T) {
	vol := buildVolume(16, 32, 16)

	gf, err := Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	require.NoError(t, err)

	// Weather interior, clear of the texture window straddling the junk
	// boundary, must survive every rule.
	for r := 0; r < vol.NRays; r++ {
		for g := 0; g < 11; g++ {
			assert.False(t, gf.Excluded(r, g), "weather gate (%d,%d) excluded", r, g)
		}
	}
	// Junk fails the correlation floor and the differential-reflectivity
	// range regardless of the texture rule.
	for r := 0; r < vol.NRays; r++ {
		for g := 16; g < vol.NGates; g++ {
			assert.True(t, gf.Excluded(r, g), "junk gate (%d,%d) included", r, g)
		}
	}
}

func TestBuildDoesNotMutateVolume(t *testing.T) {
	vol := buildVolume(8, 16, 8)
	want := append([]float64(nil), vol.Fields["PHIDP"].Data...)

	_, err := Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	require.NoError(t, err)

	assert.Equal(t, want, vol.Fields["PHIDP"].Data)
	assert.Len(t, vol.Fields, 4)
}

func TestBuildMissingFieldIsFatal(t *testing.T) {
	vol := buildVolume(8, 16, 8)
	vol.RemoveField("ZDR")

	_, err := Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	assert.ErrorIs(t, err, radar.ErrPreconditionViolation)
}

// flatPhaseVolume has a perfectly constant differential phase, so the texture
// histogram is empty and the noise estimator deterministically fails over to
// the stricter correlation floor.
func flatPhaseVolume(nRays, nGates int, rhohvValue float64) *radar.Volume {
	vol := buildVolume(nRays, nGates, nGates)
	phidp := vol.Fields["PHIDP"]
	rhohv := vol.Fields["RHOHV_CORR"]
	for i := range phidp.Data {
		phidp.Data[i] = 45
		rhohv.Data[i] = rhohvValue
	}
	return vol
}

func TestBuildNoiseOnlyVolumeTightensCorrelationFloor(t *testing.T) {
	// Correlation between the two floors: kept by the normal rule, dropped
	// once the fallback floor applies.
	vol := flatPhaseVolume(16, 32, 0.7)

	gf, err := Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	require.NoError(t, err)
	assert.Equal(t, 0, gf.IncludedCount())

	// Above the fallback floor everything survives.
	vol = flatPhaseVolume(16, 32, 0.9)
	gf, err = Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	require.NoError(t, err)
	assert.Equal(t, 16*32, gf.IncludedCount())
}

func TestDespeckleDropsSmallClusters(t *testing.T) {
	// Constant phase everywhere keeps the texture rule out of the picture;
	// inclusion is controlled purely by correlation.
	vol := flatPhaseVolume(16, 32, 0.2)
	rhohv := vol.Fields["RHOHV_CORR"]

	// Large block: 4 rays x 8 gates.
	for r := 2; r < 6; r++ {
		for g := 4; g < 12; g++ {
			rhohv.Set(r, g, 0.99)
		}
	}
	// Tiny block: 2 rays x 3 gates, below the minimum cluster size.
	for r := 10; r < 12; r++ {
		for g := 20; g < 23; g++ {
			rhohv.Set(r, g, 0.99)
		}
	}

	gf, err := Build(vol, discardLogger(), "DBZ", "PHIDP", "RHOHV_CORR", "ZDR")
	require.NoError(t, err)

	for r := 2; r < 6; r++ {
		for g := 4; g < 12; g++ {
			assert.False(t, gf.Excluded(r, g), "large cluster gate (%d,%d) excluded", r, g)
		}
	}
	for r := 10; r < 12; r++ {
		for g := 20; g < 23; g++ {
			assert.True(t, gf.Excluded(r, g), "speckle gate (%d,%d) included", r, g)
		}
	}
	assert.Equal(t, 4*8, gf.IncludedCount())
}
