package radar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVolume(nRays, nGates int) *Volume {
	az := make([]float64, nRays)
	for i := range az {
		az[i] = float64(i) * 360 / float64(nRays)
	}
	rng := make([]float64, nGates)
	for i := range rng {
		rng[i] = float64(i+1) * 250
	}
	return &Volume{
		Instrument: "CPOL",
		Time:       time.Date(2017, 2, 14, 3, 10, 0, 0, time.UTC),
		NRays:      nRays,
		NGates:     nGates,
		Azimuth:    az,
		Range:      rng,
		Sweeps:     []Sweep{{Start: 0, End: nRays, Elevation: 0.5}},
		Fields:     make(map[string]*Field),
	}
}

func TestNewFieldIsNaNFilled(t *testing.T) {
	f := NewField("DBZ", 4, 8)
	require.Len(t, f.Data, 32)
	for _, v := range f.Data {
		assert.True(t, math.IsNaN(v))
	}
	assert.False(t, f.HasFiniteData())
}

func TestFieldCloneIsIndependent(t *testing.T) {
	f := NewField("DBZ", 2, 2)
	f.Set(0, 0, 12.5)

	c := f.Clone()
	c.Set(0, 0, -1)

	assert.Equal(t, 12.5, f.At(0, 0))
	assert.Equal(t, -1.0, c.At(0, 0))
}

func TestFieldMaxAbs(t *testing.T) {
	f := NewField("VEL", 1, 4)
	f.Data[0] = 3
	f.Data[1] = -13.3
	f.Data[2] = math.NaN()

	assert.Equal(t, 13.3, f.MaxAbs())
}

func TestVolumeRenameField(t *testing.T) {
	vol := testVolume(4, 4)
	f := NewField("VEL", 4, 4)
	vol.AddField(f)

	require.True(t, vol.RenameField("VEL", "raw_velocity"))
	assert.False(t, vol.HasField("VEL"))
	require.True(t, vol.HasField("raw_velocity"))
	assert.Equal(t, "raw_velocity", vol.Fields["raw_velocity"].Name)

	assert.False(t, vol.RenameField("missing", "other"))
}

func TestEnsureNyquistPrefersMetadata(t *testing.T) {
	vol := testVolume(4, 4)
	vol.NyquistVelocity = 13.3

	ny, err := vol.EnsureNyquist("VEL")
	require.NoError(t, err)
	assert.Equal(t, 13.3, ny)
}

func TestEnsureNyquistDerivesFromField(t *testing.T) {
	vol := testVolume(2, 2)
	vel := NewField("VEL", 2, 2)
	vel.Data[0] = -9.5
	vel.Data[3] = 4
	vol.AddField(vel)

	ny, err := vol.EnsureNyquist("VEL")
	require.NoError(t, err)
	assert.Equal(t, 9.5, ny)
	assert.Equal(t, 9.5, vol.NyquistVelocity)
}

func TestEnsureNyquistEmptyFieldFails(t *testing.T) {
	vol := testVolume(2, 2)
	vol.AddField(NewField("VEL", 2, 2))

	_, err := vol.EnsureNyquist("VEL")
	require.ErrorIs(t, err, ErrPreconditionViolation)
}

func TestValidate(t *testing.T) {
	vol := testVolume(4, 4)
	vol.AddField(NewField("DBZ", 4, 4))
	require.NoError(t, vol.Validate())

	t.Run("missing field on lookup", func(t *testing.T) {
		_, err := vol.Field("VEL")
		assert.ErrorIs(t, err, ErrPreconditionViolation)
	})

	t.Run("field shape mismatch", func(t *testing.T) {
		bad := testVolume(4, 4)
		bad.AddField(NewField("DBZ", 4, 2))
		assert.ErrorIs(t, bad.Validate(), ErrPreconditionViolation)
	})

	t.Run("sweeps must cover ray axis", func(t *testing.T) {
		bad := testVolume(4, 4)
		bad.Sweeps = []Sweep{{Start: 0, End: 3}}
		assert.ErrorIs(t, bad.Validate(), ErrPreconditionViolation)
	})

	t.Run("no sweeps", func(t *testing.T) {
		bad := testVolume(4, 4)
		bad.Sweeps = nil
		assert.ErrorIs(t, bad.Validate(), ErrPreconditionViolation)
	})

	t.Run("azimuth axis length", func(t *testing.T) {
		bad := testVolume(4, 4)
		bad.Azimuth = bad.Azimuth[:2]
		assert.ErrorIs(t, bad.Validate(), ErrPreconditionViolation)
	})
}
