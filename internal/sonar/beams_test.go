package sonar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

func TestBuildStarterVectors_NoMountingRotation(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{-45, 0, 45}, InstallationOffsets{})
	require.Len(t, sv.Vectors, 3)

	// Nadir beam points straight down.
	assert.InDelta(t, 0.0, sv.Vectors[1][0], 1e-12)
	assert.InDelta(t, 0.0, sv.Vectors[1][1], 1e-12)
	assert.InDelta(t, 1.0, sv.Vectors[1][2], 1e-12)

	// Outer beams split port/starboard symmetrically.
	assert.InDelta(t, -math.Sqrt2/2, sv.Vectors[0][1], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, sv.Vectors[2][1], 1e-12)
	assert.InDelta(t, sv.Vectors[0][2], sv.Vectors[2][2], 1e-12)
}

func TestBuildStarterVectors_UnitNorm(t *testing.T) {
	t.Parallel()
	inst := InstallationOffsets{MountRollDeg: 2.5, MountPitchDeg: -1.0, MountYawDeg: 0.7}
	sv := BuildStarterVectors([]float64{-70, -30, 0, 30, 70}, inst)
	for i, v := range sv.Vectors {
		norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		assert.InDelta(t, 1.0, norm, 1e-12, "beam %d", i)
	}
}

func TestBuildOrientationVectors_LevelAttitude(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{0, 45}, InstallationOffsets{})
	ov := BuildOrientationVectors(sv, 0, 0, 0)

	assert.InDelta(t, 0.0, ov.LaunchAngleDeg[0], 1e-9)
	assert.InDelta(t, 45.0, ov.LaunchAngleDeg[1], 1e-9)
	// Starboard beam with bow north points due east.
	assert.InDelta(t, 90.0, ov.AzimuthDeg[1], 1e-9)
}

func TestBuildOrientationVectors_HeadingRotatesAzimuth(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{45}, InstallationOffsets{})

	// With the bow east, the starboard beam sweeps to the south.
	ov := BuildOrientationVectors(sv, 0, 0, 90)
	assert.InDelta(t, 180.0, ov.AzimuthDeg[0], 1e-9)
	// Launch angle from vertical is heading-invariant.
	assert.InDelta(t, 45.0, ov.LaunchAngleDeg[0], 1e-9)
}

func TestBuildOrientationVectors_RollTiltsNadirBeam(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{0}, InstallationOffsets{})
	ov := BuildOrientationVectors(sv, 5, 0, 0)
	assert.InDelta(t, 5.0, ov.LaunchAngleDeg[0], 1e-9)
}

func TestBuildOrientationVectors_MountRollCancelsAttitudeRoll(t *testing.T) {
	t.Parallel()
	// A -5 degree mounting roll compensated by +5 degrees of vessel roll
	// leaves the nadir beam vertical.
	sv := BuildStarterVectors([]float64{0}, InstallationOffsets{MountRollDeg: -5})
	ov := BuildOrientationVectors(sv, 5, 0, 0)
	// acos near z=1 amplifies float rounding, so the angle only lands
	// within microdegrees of vertical.
	assert.InDelta(t, 0.0, ov.LaunchAngleDeg[0], 1e-5)
}

func TestBuildOrientationVectors_ReusableStarters(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{-30, 0, 30}, InstallationOffsets{MountYawDeg: 1.2})
	before := make([][3]float64, len(sv.Vectors))
	copy(before, sv.Vectors)

	// Applying attitude must not mutate the starter geometry.
	_ = BuildOrientationVectors(sv, 3, -2, 271)
	_ = BuildOrientationVectors(sv, -8, 4, 12)
	assert.Equal(t, before, sv.Vectors)
}

func TestBuildOrientationVectors_AzimuthNormalized(t *testing.T) {
	t.Parallel()
	sv := BuildStarterVectors([]float64{-45, 45}, InstallationOffsets{})
	ov := BuildOrientationVectors(sv, 0, 0, 350)
	for i, az := range ov.AzimuthDeg {
		assert.GreaterOrEqual(t, az, 0.0, "beam %d", i)
		assert.Less(t, az, 360.0, "beam %d", i)
	}
	// Port beam at heading 350 points west of north.
	assert.InDelta(t, 260.0, ov.AzimuthDeg[0], 1e-9)
	assert.InDelta(t, 0.0, geo.HeadingDiff(80.0, ov.AzimuthDeg[1]), 1e-9)
}
