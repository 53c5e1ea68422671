package sonar

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// Beam vectors are built in two steps. Starter vectors depend only on the
// static installation geometry (measured beam angle + mounting rotation),
// so they are computed once per chunk and reused: re-interpolating
// attitude never forces a starter rebuild. Orientation vectors then apply
// the time-varying attitude per ping.
//
// Vessel frame: X forward, Y starboard, Z down. After the attitude/heading
// rotation the frame is local-level: X north, Y east, Z down.

// StarterVectors holds the attitude-independent per-beam unit vectors in
// the vessel frame.
type StarterVectors struct {
	Vectors [][3]float64
}

// BuildStarterVectors computes the default nadir-relative beam geometry
// rotated by the static mounting angles. beamAngleDeg is athwartship,
// positive to starboard.
func BuildStarterVectors(beamAngleDeg []float64, inst InstallationOffsets) *StarterVectors {
	rMount := rotationMatrix(inst.MountRollDeg, inst.MountPitchDeg, inst.MountYawDeg)
	out := &StarterVectors{Vectors: make([][3]float64, len(beamAngleDeg))}
	v := mat.NewVecDense(3, nil)
	rotated := mat.NewVecDense(3, nil)
	for i, angle := range beamAngleDeg {
		theta := geo.Deg2Rad(angle)
		v.SetVec(0, 0)
		v.SetVec(1, math.Sin(theta))
		v.SetVec(2, math.Cos(theta))
		rotated.MulVec(rMount, v)
		out.Vectors[i] = [3]float64{rotated.AtVec(0), rotated.AtVec(1), rotated.AtVec(2)}
	}
	return out
}

// OrientationVectors holds the per-beam pointing geometry for one ping
// after the attitude rotation: the unit vector in the local-level frame,
// the launch angle from vertical used by the ray trace, and the beam
// azimuth (degrees clockwise from north) used by georeferencing.
type OrientationVectors struct {
	Vectors        [][3]float64
	LaunchAngleDeg []float64
	AzimuthDeg     []float64
}

// BuildOrientationVectors rotates the starter vectors by one ping's
// interpolated attitude and heading.
func BuildOrientationVectors(starters *StarterVectors, rollDeg, pitchDeg, headingDeg float64) *OrientationVectors {
	r := rotationMatrix(rollDeg, pitchDeg, headingDeg)
	n := len(starters.Vectors)
	out := &OrientationVectors{
		Vectors:        make([][3]float64, n),
		LaunchAngleDeg: make([]float64, n),
		AzimuthDeg:     make([]float64, n),
	}
	v := mat.NewVecDense(3, nil)
	rotated := mat.NewVecDense(3, nil)
	for i, s := range starters.Vectors {
		v.SetVec(0, s[0])
		v.SetVec(1, s[1])
		v.SetVec(2, s[2])
		rotated.MulVec(r, v)
		x, y, z := rotated.AtVec(0), rotated.AtVec(1), rotated.AtVec(2)
		out.Vectors[i] = [3]float64{x, y, z}
		// Clamp against rounding before acos.
		cz := math.Max(-1, math.Min(1, z))
		out.LaunchAngleDeg[i] = geo.Rad2Deg(math.Acos(cz))
		out.AzimuthDeg[i] = geo.NormalizeHeading(geo.Rad2Deg(math.Atan2(y, x)))
	}
	return out
}

// rotationMatrix builds the intrinsic Z(yaw)-Y(pitch)-X(roll) rotation for
// the vessel frame convention (X forward, Y starboard, Z down).
func rotationMatrix(rollDeg, pitchDeg, yawDeg float64) *mat.Dense {
	cr, sr := cosSinDeg(rollDeg)
	cp, sp := cosSinDeg(pitchDeg)
	cy, sy := cosSinDeg(yawDeg)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var tmp, r mat.Dense
	tmp.Mul(ry, rx)
	r.Mul(rz, &tmp)
	return &r
}

func cosSinDeg(deg float64) (c, s float64) {
	rad := geo.Deg2Rad(deg)
	return math.Cos(rad), math.Sin(rad)
}
