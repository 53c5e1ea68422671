// Package geo provides angle conversions, WGS84 constants and the
// coordinate reference system (CRS) construction used by the
// georeferencing stages.
package geo

import "math"

// WGS84 ellipsoid parameters.
const (
	// WGS84SemiMajor is the WGS84 semi-major axis in meters.
	WGS84SemiMajor = 6378137.0
	// WGS84Flattening is the WGS84 flattening (1/f = 298.257223563).
	WGS84Flattening = 1.0 / 298.257223563
)

// WGS84SemiMinor is the WGS84 semi-minor axis in meters, derived from the
// semi-major axis and flattening.
var WGS84SemiMinor = WGS84SemiMajor * (1.0 - WGS84Flattening)

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// NormalizeHeading wraps a heading in degrees into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360.0)
	if h < 0 {
		h += 360.0
	}
	return h
}

// HeadingDiff returns the smallest signed difference a-b between two
// headings in degrees, in the range (-180, 180].
func HeadingDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360.0)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// KnotsToMps converts a speed in knots to meters per second. Navigation
// sources commonly report speed over ground in knots.
func KnotsToMps(knots float64) float64 {
	return knots * 0.514444
}

// MetersPerDegree returns the local meters-per-degree scale of latitude and
// longitude at the given latitude, from the WGS84 radii of curvature.
func MetersPerDegree(latDeg float64) (perLat, perLon float64) {
	lat := Deg2Rad(latDeg)
	e2 := WGS84Flattening * (2 - WGS84Flattening)
	sinLat := math.Sin(lat)
	w := math.Sqrt(1 - e2*sinLat*sinLat)
	// Meridional and prime-vertical radii of curvature.
	m := WGS84SemiMajor * (1 - e2) / (w * w * w)
	n := WGS84SemiMajor / w
	return m * math.Pi / 180.0, n * math.Cos(lat) * math.Pi / 180.0
}
