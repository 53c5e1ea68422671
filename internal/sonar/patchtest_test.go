package sonar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patchLines builds two overlapping lines over a sloped seafloor
// z = 20 + 0.05*x + 0.02*y. The second line's grid is shifted by offset
// in both axes; every cell still holds points from both lines.
func patchLines(lineA, lineB string, offset float64) []Sounding {
	var out []Sounding
	depth := func(x, y float64) float64 { return 20 + 0.05*x + 0.02*y }
	for xi := 0; xi < 30; xi++ {
		for yi := 0; yi < 30; yi++ {
			x, y := float64(xi), float64(yi)
			out = append(out,
				Sounding{X: x, Y: y, Z: depth(x, y), LineID: lineA},
				Sounding{X: x + offset, Y: y + offset, Z: depth(x+offset, y+offset), LineID: lineB},
			)
		}
	}
	return out
}

func TestRunPatchTest_IdenticalSurfaces(t *testing.T) {
	t.Parallel()
	// Zero offset: both lines sample the exact same points, so the two
	// per-line observation columns are equal and the solved parameter
	// columns must match.
	soundings := patchLines("l1", "l2", 0)

	res, err := RunPatchTest(soundings, "l1", "l2", 90, 2.0)
	require.NoError(t, err)

	// Both lines sample the same surface, so the two parameter columns
	// must come out (near) identical.
	assert.InDelta(t, res.RollDeg[0], res.RollDeg[1], 1e-6)
	assert.InDelta(t, res.PitchDeg[0], res.PitchDeg[1], 1e-6)
	assert.InDelta(t, res.HeadingDeg[0], res.HeadingDeg[1], 1e-6)
	assert.InDelta(t, res.XTranslation[0], res.XTranslation[1], 1e-6)
	assert.InDelta(t, res.YTranslation[0], res.YTranslation[1], 1e-6)
	assert.InDelta(t, res.HScaleFactor[0], res.HScaleFactor[1], 1e-6)

	for _, v := range []float64{res.RollDeg[0], res.PitchDeg[0], res.HeadingDeg[0], res.XTranslation[0], res.YTranslation[0], res.HScaleFactor[0]} {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}

func TestRunPatchTest_Deterministic(t *testing.T) {
	t.Parallel()
	soundings := patchLines("l1", "l2", 0.3)

	first, err := RunPatchTest(soundings, "l1", "l2", 37, 2.0)
	require.NoError(t, err)
	again, err := RunPatchTest(soundings, "l1", "l2", 37, 2.0)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestRunPatchTest_RejectedSoundingsExcluded(t *testing.T) {
	t.Parallel()
	soundings := patchLines("l1", "l2", 0.3)
	// Rejecting every l2 sounding removes one line entirely.
	for i := range soundings {
		if soundings[i].LineID == "l2" {
			soundings[i].Flag |= QualityRejected
		}
	}
	_, err := RunPatchTest(soundings, "l1", "l2", 90, 2.0)
	assert.Error(t, err)
}

func TestRunPatchTest_InputValidation(t *testing.T) {
	t.Parallel()
	soundings := patchLines("l1", "l2", 0.3)

	t.Run("same line twice", func(t *testing.T) {
		_, err := RunPatchTest(soundings, "l1", "l1", 90, 2.0)
		assert.Error(t, err)
	})
	t.Run("missing line", func(t *testing.T) {
		_, err := RunPatchTest(soundings, "l1", "l9", 90, 2.0)
		assert.Error(t, err)
	})
	t.Run("bad resolution", func(t *testing.T) {
		_, err := RunPatchTest(soundings, "l1", "l2", 90, 0)
		assert.Error(t, err)
	})
}

func TestRunPatchTest_NoOverlap(t *testing.T) {
	t.Parallel()
	var soundings []Sounding
	for i := 0; i < 50; i++ {
		soundings = append(soundings,
			Sounding{X: float64(i), Y: 0, Z: 20, LineID: "a"},
			Sounding{X: float64(i), Y: 5000, Z: 20, LineID: "b"},
		)
	}
	_, err := RunPatchTest(soundings, "a", "b", 90, 2.0)
	assert.Error(t, err)
}
