package sonar

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// GeoreferencedPing holds one ping's beams in the target projected frame.
// X/Y are easting/northing (or lon/lat for a geographic CRS); Z is depth in
// meters below the vessel reference point, positive down. The vertical
// reference shift to the final datum is a separate stage.
type GeoreferencedPing struct {
	X, Y, Z []float64
	Flags   []QualityFlag

	// Transducer position after the lever-arm translation, useful for
	// diagnostics and the patch-test solver.
	TransducerX, TransducerY float64
	TransducerDown           float64
}

// GeoreferencePing places the ray-traced beams of one ping into the target
// frame: project the interpolated navigation fix, translate by the lever
// arm rotated once per ping into the local-level frame, then lay each beam
// out along its azimuth at its traced horizontal distance.
func GeoreferencePing(crs *geo.CRS, navLatDeg, navLonDeg float64,
	rollDeg, pitchDeg, headingDeg float64, inst InstallationOffsets,
	trace *RayTraceResult, azimuthDeg []float64) *GeoreferencedPing {

	dNorth, dEast, dDown := rotateLeverArm(inst, rollDeg, pitchDeg, headingDeg)

	refX, refY := crs.Forward(navLatDeg, navLonDeg)
	var tx, ty float64
	if crs.Kind == geo.CRSKindGeographic {
		// Geographic output stays in degrees; scale the meter offsets by
		// the local degree lengths.
		perLat, perLon := geo.MetersPerDegree(navLatDeg)
		tx = refX + dEast/perLon
		ty = refY + dNorth/perLat
	} else {
		tx = refX + dEast
		ty = refY + dNorth
	}

	n := len(trace.Depth)
	out := &GeoreferencedPing{
		X:              make([]float64, n),
		Y:              make([]float64, n),
		Z:              make([]float64, n),
		Flags:          make([]QualityFlag, n),
		TransducerX:    tx,
		TransducerY:    ty,
		TransducerDown: dDown,
	}
	copy(out.Flags, trace.Flags)

	for i := 0; i < n; i++ {
		az := geo.Deg2Rad(azimuthDeg[i])
		h := trace.Horizontal[i]
		bEast := h * math.Sin(az)
		bNorth := h * math.Cos(az)
		if crs.Kind == geo.CRSKindGeographic {
			perLat, perLon := geo.MetersPerDegree(navLatDeg)
			out.X[i] = tx + bEast/perLon
			out.Y[i] = ty + bNorth/perLat
		} else {
			out.X[i] = tx + bEast
			out.Y[i] = ty + bNorth
		}
		out.Z[i] = dDown + trace.Depth[i]
	}
	return out
}

// rotateLeverArm rotates the static lever arm by one ping's attitude into
// the local-level frame, returning (north, east, down) offsets in meters.
// The rotation happens once per ping, not once per beam.
func rotateLeverArm(inst InstallationOffsets, rollDeg, pitchDeg, headingDeg float64) (north, east, down float64) {
	if inst.LeverX == 0 && inst.LeverY == 0 && inst.LeverZ == 0 {
		return 0, 0, 0
	}
	r := rotationMatrix(rollDeg, pitchDeg, headingDeg)
	l := mat.NewVecDense(3, []float64{inst.LeverX, inst.LeverY, inst.LeverZ})
	var rotated mat.VecDense
	rotated.MulVec(r, l)
	return rotated.AtVec(0), rotated.AtVec(1), rotated.AtVec(2)
}

// InducedHeave is the vertical displacement of the transducer caused by
// attitude rotating the lever arm: the down component of R·L minus the
// static down component of L.
func InducedHeave(inst InstallationOffsets, rollDeg, pitchDeg, headingDeg float64) float64 {
	_, _, down := rotateLeverArm(inst, rollDeg, pitchDeg, headingDeg)
	return down - inst.LeverZ
}
