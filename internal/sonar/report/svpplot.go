package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// PlotCastProfile renders a sound velocity cast as a velocity-vs-depth
// curve. Depth is plotted negated so the surface sits at the top of the
// figure. The output format follows the file extension (.png, .svg, .pdf).
func PlotCastProfile(cast *sonar.Cast, path string) error {
	if cast == nil || len(cast.Depth) == 0 {
		return fmt.Errorf("cast has no samples")
	}
	if len(cast.Depth) != len(cast.Velocity) {
		return fmt.Errorf("cast has %d depths but %d velocities", len(cast.Depth), len(cast.Velocity))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sound velocity profile %s", cast.ID)
	if cast.HasLocation {
		p.Title.Text += fmt.Sprintf(" (%.4f, %.4f)", cast.LatDeg, cast.LonDeg)
	}
	p.X.Label.Text = "Sound velocity (m/s)"
	p.Y.Label.Text = "Depth (m)"

	pts := make(plotter.XYs, len(cast.Depth))
	for i := range cast.Depth {
		pts[i].X = cast.Velocity[i]
		pts[i].Y = -cast.Depth[i]
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building profile line: %w", err)
	}
	p.Add(line, plotter.NewGrid())

	if err := p.Save(5*vg.Inch, 7*vg.Inch, path); err != nil {
		return fmt.Errorf("saving profile plot: %w", err)
	}
	return nil
}
