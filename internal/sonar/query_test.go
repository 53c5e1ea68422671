package sonar

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSoundings() []Sounding {
	return []Sounding{
		{X: 1, Y: 1, Z: 20, TVU: 0.1, THU: 0.2, LineID: "l1"},
		{X: 5, Y: 5, Z: 22, TVU: 0.3, THU: 0.4, LineID: "l1", Flag: QualityDegraded},
		{X: 50, Y: 50, Z: 30, TVU: 0.5, THU: 0.6, LineID: "l2"},
		{X: 2, Y: 8, Z: 25, TVU: 0.7, THU: 0.8, LineID: "l2", Flag: QualityRejected},
	}
}

func TestReturnSoundingsInPolygon(t *testing.T) {
	t.Parallel()
	square := [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	in, err := ReturnSoundingsInPolygon(sampleSoundings(), square)
	require.NoError(t, err)
	require.Len(t, in, 3)
	for _, s := range in {
		assert.Less(t, s.X, 10.0)
	}

	t.Run("degenerate polygon rejected", func(t *testing.T) {
		_, err := ReturnSoundingsInPolygon(sampleSoundings(), [][2]float64{{0, 0}, {1, 1}})
		assert.Error(t, err)
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		far := [][2]float64{{1000, 1000}, {1001, 1000}, {1001, 1001}}
		out, err := ReturnSoundingsInPolygon(sampleSoundings(), far)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestGetVariableByFilter(t *testing.T) {
	t.Parallel()
	all := sampleSoundings()

	z, err := GetVariableByFilter(all, "z", SoundingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 22, 30, 25}, z)

	t.Run("line filter", func(t *testing.T) {
		tvu, err := GetVariableByFilter(all, "tvu", SoundingFilter{LineID: "l2"})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.7}, tvu)
	})

	t.Run("quality filters", func(t *testing.T) {
		z, err := GetVariableByFilter(all, "z", SoundingFilter{ExcludeRejected: true, ExcludeDegraded: true})
		require.NoError(t, err)
		assert.Equal(t, []float64{20, 30}, z)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := GetVariableByFilter(all, "backscatter", SoundingFilter{})
		assert.Error(t, err)
	})
}

func TestExportSoundingsToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SetExportDir(dir))

	path, err := ExportSoundingsToFile(sampleSoundings(), "survey.xyz", SoundingFilter{}, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Header plus one line per sounding.
	require.Len(t, lines, 5)
	assert.Equal(t, "# x y z tvu thu flag", lines[0])
	assert.Equal(t, "1.000 1.000 20.000 0.100 0.200 0", lines[1])

	t.Run("traversal rejected to base name", func(t *testing.T) {
		p, err := ExportSoundingsToFile(sampleSoundings(), "../../etc/evil.xyz", SoundingFilter{}, false)
		require.NoError(t, err)
		assert.Equal(t, dir, strings.TrimSuffix(p, "/evil.xyz"))
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := ExportSoundingsToFile(sampleSoundings(), "", SoundingFilter{}, false)
		assert.Error(t, err)
	})
}

func TestExportPingsToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SetExportDir(dir))

	chunks, err := BuildChunks(makePings("l1", at(0), 3, 16), 1000)
	require.NoError(t, err)

	path, err := ExportPingsToFile(chunks, "pings.tsv")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "l1\t0\t"))
	assert.True(t, strings.HasSuffix(lines[1], "\t16"))
}
