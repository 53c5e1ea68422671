package sonar

import "fmt"

// SoundingFilter selects a subset of soundings for queries and exports.
// Zero value matches everything.
type SoundingFilter struct {
	LineID          string // empty matches all lines
	HeadID          int
	FilterHead      bool
	ExcludeRejected bool
	ExcludeDegraded bool
}

// Match reports whether the sounding passes the filter.
func (f *SoundingFilter) Match(s *Sounding) bool {
	if f.LineID != "" && s.LineID != f.LineID {
		return false
	}
	if f.FilterHead && s.HeadID != f.HeadID {
		return false
	}
	if f.ExcludeRejected && s.Flag.Rejected() {
		return false
	}
	if f.ExcludeDegraded && s.Flag.Degraded() {
		return false
	}
	return true
}

// ReturnSoundingsInPolygon returns the soundings whose X/Y fall inside the
// closed polygon. The polygon is a ring of projected-frame vertices; it
// need not repeat the first vertex. Vertex order does not matter.
func ReturnSoundingsInPolygon(soundings []Sounding, polygon [][2]float64) ([]Sounding, error) {
	if len(polygon) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(polygon))
	}
	var out []Sounding
	for i := range soundings {
		if pointInPolygon(soundings[i].X, soundings[i].Y, polygon) {
			out = append(out, soundings[i])
		}
	}
	return out, nil
}

// GetVariableByFilter extracts one named per-sounding variable across the
// soundings passing the filter. Known variables: x, y, z, tvu, thu.
func GetVariableByFilter(soundings []Sounding, variable string, f SoundingFilter) ([]float64, error) {
	var get func(*Sounding) float64
	switch variable {
	case "x":
		get = func(s *Sounding) float64 { return s.X }
	case "y":
		get = func(s *Sounding) float64 { return s.Y }
	case "z":
		get = func(s *Sounding) float64 { return s.Z }
	case "tvu":
		get = func(s *Sounding) float64 { return s.TVU }
	case "thu":
		get = func(s *Sounding) float64 { return s.THU }
	default:
		return nil, fmt.Errorf("unknown sounding variable %q", variable)
	}
	var out []float64
	for i := range soundings {
		if f.Match(&soundings[i]) {
			out = append(out, get(&soundings[i]))
		}
	}
	return out, nil
}

// pointInPolygon is the even-odd ray casting test. Points exactly on an
// edge may land on either side; survey polygons are drawn with margin.
func pointInPolygon(x, y float64, poly [][2]float64) bool {
	inside := false
	n := len(poly)
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := poly[i][0], poly[i][1]
		xj, yj := poly[j][0], poly[j][1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
