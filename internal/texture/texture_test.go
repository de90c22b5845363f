package texture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zssherman/cpol-processing/internal/radar"
)

func testVolume(nRays, nGates int) *radar.Volume {
	az := make([]float64, nRays)
	for i := range az {
		az[i] = float64(i) * 360 / float64(nRays)
	}
	return &radar.Volume{
		NRays:   nRays,
		NGates:  nGates,
		Azimuth: az,
		Sweeps:  []radar.Sweep{{Start: 0, End: nRays}},
		Fields:  make(map[string]*radar.Field),
	}
}

func TestAngularConstantFieldHasZeroTexture(t *testing.T) {
	vol := testVolume(8, 8)
	f := radar.NewField("PHIDP", 8, 8)
	for i := range f.Data {
		f.Data[i] = 42
	}

	out := Angular(vol, f, 2, 360, WrapAzimuth)
	for _, v := range out.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestAngularFoldedValuesStayCoherent(t *testing.T) {
	// 179 and -179 degrees are 2 degrees apart on the circle but 358 apart
	// linearly. Angular texture must see the small distance.
	vol := testVolume(8, 8)
	f := radar.NewField("PHIDP", 8, 8)
	for i := range f.Data {
		if i%2 == 0 {
			f.Data[i] = 179
		} else {
			f.Data[i] = -179
		}
	}

	out := Angular(vol, f, 2, 360, WrapAzimuth)
	for _, v := range out.Data {
		require.False(t, math.IsNaN(v))
		assert.Less(t, v, 5.0)
	}
}

func TestAngularIncoherentExceedsCoherent(t *testing.T) {
	vol := testVolume(8, 16)
	coherent := radar.NewField("PHIDP", 8, 16)
	noisy := radar.NewField("PHIDP", 8, 16)
	for i := range coherent.Data {
		coherent.Data[i] = 30 + float64(i%3)
		// Deterministic pseudo-noise spanning the whole interval.
		noisy.Data[i] = math.Mod(float64(i)*137.5, 360) - 180
	}

	outCoherent := Angular(vol, coherent, 1, 360, WrapAzimuth)
	outNoisy := Angular(vol, noisy, 1, 360, WrapAzimuth)

	var meanCoherent, meanNoisy float64
	for i := range outCoherent.Data {
		meanCoherent += outCoherent.Data[i]
		meanNoisy += outNoisy.Data[i]
	}
	assert.Greater(t, meanNoisy, meanCoherent*10)
}

func TestAngularAllNaNWindowYieldsNaN(t *testing.T) {
	vol := testVolume(4, 4)
	f := radar.NewField("PHIDP", 4, 4)

	out := Angular(vol, f, 1, 360, WrapAzimuth)
	for _, v := range out.Data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestAngularBoundaryModes(t *testing.T) {
	// First half of the sweep at 0 degrees, second half at 180: only the
	// azimuthal boundary rays see mixed windows, and only when wrapping.
	vol := testVolume(8, 4)
	f := radar.NewField("PHIDP", 8, 4)
	for r := 0; r < 8; r++ {
		for g := 0; g < 4; g++ {
			if r < 4 {
				f.Set(r, g, 0)
			} else {
				f.Set(r, g, 180)
			}
		}
	}

	wrapped := Angular(vol, f, 1, 360, WrapAzimuth)
	clamped := Angular(vol, f, 1, 360, ClampAzimuth)

	// Ray 0 neighbours ray 7 only under wrapping.
	assert.Greater(t, wrapped.At(0, 0), 0.0)
	assert.Equal(t, 0.0, clamped.At(0, 0))

	// Interior rays away from both boundaries are identical.
	assert.Equal(t, wrapped.At(2, 2), clamped.At(2, 2))
}

func TestVelocityUsesNyquistCoInterval(t *testing.T) {
	// Gates alternating just below +Nyquist and just above -Nyquist are one
	// fold apart, so their texture must stay small in velocity units.
	vol := testVolume(8, 8)
	vol.NyquistVelocity = 10
	vel := radar.NewField("VEL", 8, 8)
	for i := range vel.Data {
		if i%2 == 0 {
			vel.Data[i] = 9
		} else {
			vel.Data[i] = -9
		}
	}
	vol.AddField(vel)

	out, err := Velocity(vol, "VEL", 2)
	require.NoError(t, err)
	assert.Equal(t, "VEL_texture", out.Name)
	for _, v := range out.Data {
		require.False(t, math.IsNaN(v))
		assert.Less(t, v, 2.0)
	}
}

func TestVelocityMissingField(t *testing.T) {
	vol := testVolume(4, 4)
	_, err := Velocity(vol, "VEL", 1)
	assert.Error(t, err)
}

func TestAngularNonPositiveInterval(t *testing.T) {
	vol := testVolume(4, 4)
	f := radar.NewField("PHIDP", 4, 4)
	for i := range f.Data {
		f.Data[i] = 1
	}

	out := Angular(vol, f, 1, 0, WrapAzimuth)
	for _, v := range out.Data {
		assert.True(t, math.IsNaN(v))
	}
}
