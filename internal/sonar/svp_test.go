package sonar

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCast(id string, t time.Time) *Cast {
	return &Cast{
		ID:       id,
		Time:     t,
		Depth:    []float64{0, 10, 50, 200},
		Velocity: []float64{1500, 1495, 1487, 1482},
	}
}

func TestAddCast_ValidationAndDuplicates(t *testing.T) {
	t.Parallel()
	ps := NewProfileSet()

	require.NoError(t, ps.AddCast(testCast("a", at(0))))
	assert.Equal(t, uint64(1), ps.Snapshot().Version)

	t.Run("duplicate timestamp rejected", func(t *testing.T) {
		err := ps.AddCast(testCast("b", at(0)))
		var dupErr *DuplicateCastError
		require.True(t, errors.As(err, &dupErr))
		assert.Equal(t, "b", dupErr.CastID)
	})

	t.Run("non-increasing depths rejected", func(t *testing.T) {
		bad := testCast("c", at(100))
		bad.Depth = []float64{0, 10, 10, 200}
		assert.Error(t, ps.AddCast(bad))
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		bad := testCast("d", at(200))
		bad.Velocity = bad.Velocity[:3]
		assert.Error(t, ps.AddCast(bad))
	})
}

func TestApplicableCast_NearestTime(t *testing.T) {
	t.Parallel()
	ps := NewProfileSet()
	require.NoError(t, ps.AddCast(testCast("early", at(0))))
	require.NoError(t, ps.AddCast(testCast("late", at(100))))
	snap := ps.Snapshot()

	// Two casts at t=0 and t=100: a ping at t=40 selects the t=0 cast,
	// a ping at t=60 selects the t=100 cast.
	c40 := snap.ApplicableCast(at(40), 0, 0, false, TieBreakEarliest)
	c60 := snap.ApplicableCast(at(60), 0, 0, false, TieBreakEarliest)
	require.NotNil(t, c40)
	require.NotNil(t, c60)
	assert.Equal(t, "early", c40.ID)
	assert.Equal(t, "late", c60.ID)
}

func TestApplicableCast_Deterministic(t *testing.T) {
	t.Parallel()
	ps := NewProfileSet()
	require.NoError(t, ps.AddCast(testCast("a", at(0))))
	require.NoError(t, ps.AddCast(testCast("b", at(100))))
	snap := ps.Snapshot()

	first := snap.ApplicableCast(at(37), 42, -70, true, TieBreakLocation)
	for i := 0; i < 10; i++ {
		assert.Same(t, first, snap.ApplicableCast(at(37), 42, -70, true, TieBreakLocation))
	}
}

func TestApplicableCast_TieBreak(t *testing.T) {
	t.Parallel()
	near := testCast("near", at(0))
	near.LatDeg, near.LonDeg, near.HasLocation = 42.0, -70.0, true
	far := testCast("far", at(100))
	far.LatDeg, far.LonDeg, far.HasLocation = 45.0, -65.0, true

	ps := NewProfileSet()
	require.NoError(t, ps.AddCast(near))
	require.NoError(t, ps.AddCast(far))
	snap := ps.Snapshot()

	// A ping exactly between the two cast times is a tie.
	t.Run("location tie-break picks nearer cast", func(t *testing.T) {
		c := snap.ApplicableCast(at(50), 42.0, -70.0, true, TieBreakLocation)
		assert.Equal(t, "near", c.ID)
	})
	t.Run("earliest tie-break picks first index", func(t *testing.T) {
		c := snap.ApplicableCast(at(50), 42.0, -70.0, true, TieBreakEarliest)
		assert.Equal(t, "near", c.ID)
	})
	t.Run("no ping location falls back to earliest", func(t *testing.T) {
		c := snap.ApplicableCast(at(50), 0, 0, false, TieBreakLocation)
		assert.Equal(t, "near", c.ID)
	})
}

func TestRemoveCast_BumpsVersion(t *testing.T) {
	t.Parallel()
	ps := NewProfileSet()
	require.NoError(t, ps.AddCast(testCast("a", at(0))))
	require.NoError(t, ps.AddCast(testCast("b", at(100))))

	before := ps.Snapshot()
	require.Equal(t, uint64(2), before.Version)

	require.True(t, ps.RemoveCast("a"))
	after := ps.Snapshot()
	assert.Equal(t, uint64(3), after.Version)
	assert.Len(t, after.Casts(), 1)

	// The old snapshot is untouched: in-flight chunks keep their view.
	assert.Len(t, before.Casts(), 2)

	assert.False(t, ps.RemoveCast("missing"))
}

func TestImportSoundVelocityFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cast1.svp")
	content := `# time: 2026-03-14T12:00:00Z
# position: 42.35 -70.90
0.0 1500.0
10.0 1495.2
50.0 1487.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ps := NewProfileSet()
	ids, err := ps.ImportSoundVelocityFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	casts := ps.Snapshot().Casts()
	require.Len(t, casts, 1)
	c := casts[0]
	assert.True(t, c.HasLocation)
	assert.InDelta(t, 42.35, c.LatDeg, 1e-9)
	assert.Equal(t, []float64{0, 10, 50}, c.Depth)
	assert.Equal(t, []float64{1500, 1495.2, 1487.8}, c.Velocity)

	t.Run("missing time header", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.svp")
		require.NoError(t, os.WriteFile(bad, []byte("0 1500\n10 1490\n"), 0o644))
		_, err := ps.ImportSoundVelocityFiles([]string{bad})
		assert.Error(t, err)
	})
}
