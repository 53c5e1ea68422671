package sonar

import (
	"math"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// Ray-bending policy, applied consistently across a run: sound velocity
// varies linearly within each full profile layer (constant-gradient arcs),
// and is treated as locally constant inside the terminal partial layer
// where the remaining travel time runs out. There is no per-beam or
// per-chunk switching between policies.

// svGradientFloor is the gradient magnitude below which a layer is treated
// as isovelocity to avoid dividing by a near-zero gradient.
const svGradientFloor = 1e-9

// RayTraceResult holds the corrected travel path for each beam of a ping:
// horizontal distance from the transducer in the beam plane and depth below
// the transducer, plus per-beam quality flags for clamped traces.
type RayTraceResult struct {
	Horizontal []float64
	Depth      []float64
	Flags      []QualityFlag
}

// RayTrace integrates ray bending through the cast's layers for each beam.
//
// travelTime is two-way in seconds; launchAngleDeg is the beam angle from
// vertical at the transducer (degrees, magnitude). Beams that hit total
// internal reflection or run past the deepest profile point are clamped to
// the nearest valid profile boundary and flagged QualityDegraded; the chunk
// itself never fails.
func RayTrace(c *Cast, travelTime, launchAngleDeg []float64) *RayTraceResult {
	n := len(travelTime)
	res := &RayTraceResult{
		Horizontal: make([]float64, n),
		Depth:      make([]float64, n),
		Flags:      make([]QualityFlag, n),
	}
	for i := 0; i < n; i++ {
		h, d, degraded := traceBeam(c, travelTime[i]/2.0, launchAngleDeg[i])
		res.Horizontal[i] = h
		res.Depth[i] = d
		if degraded {
			res.Flags[i] |= QualityDegraded
		}
	}
	return res
}

// traceBeam traces a single beam through the profile for oneWayTime
// seconds. Returns horizontal distance, depth and whether the trace was
// clamped at a profile boundary.
func traceBeam(c *Cast, oneWayTime, launchAngleDeg float64) (horizontal, depth float64, degraded bool) {
	if oneWayTime <= 0 {
		return 0, 0, false
	}
	theta := geo.Deg2Rad(math.Abs(launchAngleDeg))
	c0 := c.Velocity[0]
	// Snell constant along the whole ray.
	p := math.Sin(theta) / c0

	tRem := oneWayTime
	var x, z float64

	for layer := 0; layer+1 < len(c.Depth); layer++ {
		z1, z2 := c.Depth[layer], c.Depth[layer+1]
		c1, c2 := c.Velocity[layer], c.Velocity[layer+1]

		sin1 := p * c1
		if sin1 >= 1 {
			// Total internal reflection at the layer boundary: the ray
			// cannot continue downward. Clamp to horizontal travel at the
			// boundary velocity.
			return x + c1*tRem, z, true
		}
		cos1 := math.Sqrt(1 - sin1*sin1)

		sin2 := p * c2
		if sin2 >= 1 {
			// The ray turns horizontal inside this layer. Clamp at the
			// current boundary rather than solving for the turning depth.
			return x + c1*tRem, z, true
		}
		cos2 := math.Sqrt(1 - sin2*sin2)

		g := (c2 - c1) / (z2 - z1)
		var dt, dx float64
		if math.Abs(g) < svGradientFloor || p == 0 {
			// Isovelocity layer (or nadir beam): straight segment.
			dt = (z2 - z1) / (c1 * cos1)
			dx = (z2 - z1) * (sin1 / cos1)
		} else {
			// Constant-gradient layer: circular arc of radius 1/(p*g).
			dt = math.Log((c2/c1)*((1+cos1)/(1+cos2))) / g
			dx = (cos1 - cos2) / (p * g)
		}

		if dt >= tRem {
			// The beam terminates inside this layer; locally constant
			// velocity for the partial segment.
			pathLen := c1 * tRem
			return x + pathLen*sin1, z + pathLen*cos1, degraded
		}
		tRem -= dt
		x += dx
		z += z2 - z1
	}

	// Remaining time extends past the deepest profile point: clamp to the
	// boundary velocity, extrapolate straight, and flag the beam.
	last := len(c.Depth) - 1
	cLast := c.Velocity[last]
	sinL := math.Min(p*cLast, 1)
	cosL := math.Sqrt(1 - sinL*sinL)
	pathLen := cLast * tRem
	return x + pathLen*sinL, z + pathLen*cosL, true
}
