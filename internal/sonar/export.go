package sonar

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelagic-data/bathy.report/internal/security"
)

// exportDir is the base directory for all file exports. Exports are
// restricted to a single directory so arbitrary caller-supplied paths
// cannot write outside controlled locations.
var exportDir = func() string {
	tmp := os.TempDir()
	abs, err := filepath.Abs(tmp)
	if err != nil {
		return tmp
	}
	return filepath.Clean(abs)
}()

// SetExportDir changes the export base directory. The directory must
// already exist.
func SetExportDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("cannot resolve export directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("export directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export directory %s is not a directory", abs)
	}
	exportDir = filepath.Clean(abs)
	return nil
}

// safeExportPath constructs a safe absolute path for an export file from a
// user-supplied path string: only the final component is used, anchored
// under exportDir, and the result is validated with the shared security
// helper.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export path")
	}
	base := filepath.Base(userPath)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export filename")
	}

	joined := filepath.Join(exportDir, base)
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("cannot resolve export path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)
	if !strings.HasPrefix(cleanPath, exportDir+string(os.PathSeparator)) && cleanPath != exportDir {
		return "", fmt.Errorf("export path escapes base directory")
	}
	if err := security.ValidatePathWithinDirectory(cleanPath, exportDir); err != nil {
		diagf("rejected export path %s (from %s): %v", cleanPath, userPath, err)
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return cleanPath, nil
}

// ExportSoundingsToFile writes soundings passing the filter as ASCII XYZ:
// one "x y z" line per sounding, with "tvu thu flag" columns appended when
// includeUncertainty is set. Returns the resolved path written.
func ExportSoundingsToFile(soundings []Sounding, filePath string, f SoundingFilter, includeUncertainty bool) (string, error) {
	safePath, err := safeExportPath(filePath)
	if err != nil {
		return "", err
	}

	out, err := os.Create(safePath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	header := "# x y z"
	if includeUncertainty {
		header += " tvu thu flag"
	}
	fmt.Fprintln(w, header)

	count := 0
	for i := range soundings {
		s := &soundings[i]
		if !f.Match(s) {
			continue
		}
		if includeUncertainty {
			fmt.Fprintf(w, "%.3f %.3f %.3f %.3f %.3f %d\n", s.X, s.Y, s.Z, s.TVU, s.THU, s.Flag)
		} else {
			fmt.Fprintf(w, "%.3f %.3f %.3f\n", s.X, s.Y, s.Z)
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	opsf("exported %d soundings to %s", count, safePath)
	return safePath, nil
}

// ExportPingsToFile writes the raw ping inventory of the chunks as a
// tab-separated table (line, chunk, time, head, beams). Useful for
// inspecting chunk boundaries without loading a full viewer.
func ExportPingsToFile(chunks []Chunk, filePath string) (string, error) {
	safePath, err := safeExportPath(filePath)
	if err != nil {
		return "", err
	}

	out, err := os.Create(safePath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	fmt.Fprintln(w, "line\tchunk\ttime\thead\tbeams")
	for ci := range chunks {
		c := &chunks[ci]
		for pi := range c.Pings {
			p := &c.Pings[pi]
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n",
				c.LineID, c.Index, p.Time.Format(time.RFC3339Nano), p.HeadID, p.BeamCount())
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return safePath, nil
}
