package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

func reportSoundings() []sonar.Sounding {
	return []sonar.Sounding{
		{LineID: "l1", PingIndex: 0, BeamIndex: 0, TVU: 0.10, THU: 0.20},
		{LineID: "l1", PingIndex: 0, BeamIndex: 1, TVU: 0.14, THU: 0.26},
		{LineID: "l1", PingIndex: 1, BeamIndex: 0, TVU: 0.11, THU: 0.21},
		{LineID: "l2", PingIndex: 0, BeamIndex: 0, TVU: 0.30, THU: 0.40, Flag: sonar.QualityDegraded},
		{LineID: "l2", PingIndex: 0, BeamIndex: 1, TVU: 0.32, THU: 0.44, Flag: sonar.QualityRejected},
	}
}

func TestBuildUncertaintyReport(t *testing.T) {
	t.Parallel()

	rep := BuildUncertaintyReport(reportSoundings())
	require.Len(t, rep.Lines, 2)

	l1 := rep.Lines[0]
	assert.Equal(t, "l1", l1.LineID)
	assert.Equal(t, []int{0, 1}, l1.PingIndex)
	assert.InDelta(t, 0.10, l1.MinTVU[0], 1e-12)
	assert.InDelta(t, 0.14, l1.MaxTVU[0], 1e-12)
	assert.InDelta(t, 0.26, l1.MaxTHU[0], 1e-12)
	assert.Equal(t, 3, l1.Soundings)
	assert.Equal(t, 0, l1.Degraded)

	l2 := rep.Lines[1]
	assert.Equal(t, 2, l2.Soundings)
	assert.Equal(t, 1, l2.Degraded)
	assert.Equal(t, 1, l2.Rejected)
}

func TestBuildUncertaintyReport_NaNValues(t *testing.T) {
	t.Parallel()

	rep := BuildUncertaintyReport([]sonar.Sounding{
		{LineID: "l1", PingIndex: 0, TVU: math.NaN(), THU: 0.2},
		{LineID: "l1", PingIndex: 0, TVU: 0.5, THU: 0.3},
	})
	require.Len(t, rep.Lines, 1)
	assert.InDelta(t, 0.5, rep.Lines[0].MinTVU[0], 1e-12)
	assert.InDelta(t, 0.5, rep.Lines[0].MaxTVU[0], 1e-12)
}

func TestUncertaintyReport_WriteHTML(t *testing.T) {
	t.Parallel()

	rep := BuildUncertaintyReport(reportSoundings())
	path := filepath.Join(t.TempDir(), "uncertainty.html")
	require.NoError(t, rep.WriteHTML(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(content)
	assert.True(t, strings.Contains(html, "Line l1 TVU envelope"))
	assert.True(t, strings.Contains(html, "Line l2 THU envelope"))
	assert.True(t, strings.Contains(html, "echarts"))
}

func TestUncertaintyReport_WriteHTML_Empty(t *testing.T) {
	t.Parallel()

	rep := BuildUncertaintyReport(nil)
	err := rep.WriteHTML(filepath.Join(t.TempDir(), "empty.html"))
	assert.Error(t, err)
}

func TestPlotCastProfile(t *testing.T) {
	t.Parallel()

	cast := &sonar.Cast{
		ID:       "day1-cast3",
		Time:     time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Depth:    []float64{0, 10, 25, 60, 120},
		Velocity: []float64{1510, 1508, 1495, 1488, 1492},
	}
	path := filepath.Join(t.TempDir(), "cast.png")
	require.NoError(t, PlotCastProfile(cast, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	t.Run("rejects empty cast", func(t *testing.T) {
		err := PlotCastProfile(&sonar.Cast{ID: "empty"}, filepath.Join(t.TempDir(), "x.png"))
		assert.Error(t, err)
	})

	t.Run("rejects mismatched lengths", func(t *testing.T) {
		bad := &sonar.Cast{ID: "bad", Depth: []float64{0, 10}, Velocity: []float64{1500}}
		err := PlotCastProfile(bad, filepath.Join(t.TempDir(), "y.png"))
		assert.Error(t, err)
	})
}
