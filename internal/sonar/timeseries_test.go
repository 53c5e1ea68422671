package sonar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

var seriesEpoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return seriesEpoch.Add(time.Duration(sec * float64(time.Second)))
}

func TestNewSeries_RejectsMalformed(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := NewSeries("attitude", nil)
		var mErr *MalformedSeriesError
		require.True(t, errors.As(err, &mErr))
	})

	t.Run("duplicate timestamp", func(t *testing.T) {
		t.Parallel()
		_, err := NewSeries("attitude", []time.Time{at(0), at(1), at(1)})
		var mErr *MalformedSeriesError
		require.True(t, errors.As(err, &mErr))
		assert.Equal(t, 2, mErr.Index)
		assert.Contains(t, mErr.Error(), "duplicate")
	})

	t.Run("non-monotonic", func(t *testing.T) {
		t.Parallel()
		_, err := NewSeries("navigation", []time.Time{at(0), at(2), at(1)})
		var mErr *MalformedSeriesError
		require.True(t, errors.As(err, &mErr))
		assert.Equal(t, "navigation", mErr.Series)
	})
}

func TestInterpolateAt_Midpoint(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("heave", []time.Time{at(0), at(10)})
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("heave", []float64{10, 20}, false))

	// Samples at t=0 (10) and t=10 (20): a ping at t=5 must interpolate
	// to exactly 15.0.
	res := s.InterpolateAt([]time.Time{at(5)})
	require.NoError(t, res.Err())
	require.True(t, res.Valid[0])
	assert.Equal(t, 15.0, res.Channels["heave"][0])
}

func TestInterpolateAt_ConstantSeries(t *testing.T) {
	t.Parallel()
	times := []time.Time{at(0), at(1), at(2), at(3)}
	s, err := NewSeries("roll", times)
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("roll", []float64{2.5, 2.5, 2.5, 2.5}, false))

	res := s.InterpolateAt([]time.Time{at(0.25), at(1.5), at(2.999), at(3)})
	require.NoError(t, res.Err())
	for i, v := range res.Channels["roll"] {
		assert.True(t, res.Valid[i])
		assert.Equal(t, 2.5, v, "target %d", i)
	}
}

func TestInterpolateAt_OutOfRangeFlaggedNotFatal(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("navigation", []time.Time{at(5), at(15)})
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("lat", []float64{42.0, 42.1}, false))

	res := s.InterpolateAt([]time.Time{at(0), at(10), at(20)})

	// The in-range ping still interpolates; the others are flagged.
	assert.Equal(t, []bool{false, true, false}, res.Valid)
	assert.Equal(t, []int{0, 2}, res.OutOfRange)
	assert.InDelta(t, 42.05, res.Channels["lat"][1], 1e-12)

	var oorErr *OutOfRangeError
	require.True(t, errors.As(res.Err(), &oorErr))
	assert.Equal(t, "navigation", oorErr.Series)
}

func TestInterpolateAt_ExactSampleHit(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("pitch", []time.Time{at(0), at(1), at(2)})
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("pitch", []float64{-1, 0, 1}, false))

	res := s.InterpolateAt([]time.Time{at(0), at(1), at(2)})
	require.NoError(t, res.Err())
	assert.Equal(t, []float64{-1, 0, 1}, res.Channels["pitch"])
}

func TestInterpolateAt_HeadingWrap(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("attitude", []time.Time{at(0), at(10)})
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("heading", []float64{350, 10}, true))

	// Midway between 350° and 10° through the wrap is 0°, not 180°.
	res := s.InterpolateAt([]time.Time{at(5)})
	require.NoError(t, res.Err())
	h := res.Channels["heading"][0]
	assert.InDelta(t, 0.0, geo.HeadingDiff(h, 0), 1e-9)
}

func TestAddChannel_LengthMismatch(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("attitude", []time.Time{at(0), at(1)})
	require.NoError(t, err)
	assert.Error(t, s.AddChannel("roll", []float64{1, 2, 3}, false))
}

func TestInterpolateAt_MultiChannel(t *testing.T) {
	t.Parallel()
	s, err := NewSeries("attitude", []time.Time{at(0), at(4)})
	require.NoError(t, err)
	require.NoError(t, s.AddChannel("roll", []float64{0, 4}, false))
	require.NoError(t, s.AddChannel("pitch", []float64{2, 0}, false))

	res := s.InterpolateAt([]time.Time{at(1), at(3)})
	require.NoError(t, res.Err())
	assert.InDelta(t, 1.0, res.Channels["roll"][0], 1e-12)
	assert.InDelta(t, 3.0, res.Channels["roll"][1], 1e-12)
	assert.InDelta(t, 1.5, res.Channels["pitch"][0], 1e-12)
	assert.InDelta(t, 0.5, res.Channels["pitch"][1], 1e-12)
}
