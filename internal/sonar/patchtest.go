package sonar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// Patch test: least-squares estimation of residual installation calibration
// parameters (roll, pitch, heading, x/y translation, horizontal scale) from
// a pair of reciprocal overlapping survey lines, after Bjorke's "Computation
// of Calibration Parameters for Multibeam Echo Sounders Using the Least
// Squares Method". Points are rotated into a model frame aligned with the
// line azimuth, gridded to a single-resolution surface, and the parameter
// vector is solved per line from the overlap cells.

// PatchTestResult holds the six solved parameters for each of the two
// lines. Angles are degrees, translations meters.
type PatchTestResult struct {
	Lines [2]string

	RollDeg      [2]float64
	PitchDeg     [2]float64
	HeadingDeg   [2]float64
	XTranslation [2]float64
	YTranslation [2]float64
	HScaleFactor [2]float64
}

func (r *PatchTestResult) String() string {
	return fmt.Sprintf("patch test %s/%s: roll=[%.4f %.4f] pitch=[%.4f %.4f] heading=[%.4f %.4f] x=[%.3f %.3f] y=[%.3f %.3f] hscale=[%.5f %.5f]",
		r.Lines[0], r.Lines[1],
		r.RollDeg[0], r.RollDeg[1], r.PitchDeg[0], r.PitchDeg[1],
		r.HeadingDeg[0], r.HeadingDeg[1], r.XTranslation[0], r.XTranslation[1],
		r.YTranslation[0], r.YTranslation[1], r.HScaleFactor[0], r.HScaleFactor[1])
}

// RunPatchTest solves the calibration parameters from the soundings of two
// overlapping lines. azimuthDeg is the azimuth of one line; resolution the
// grid cell size in meters. Rejected soundings are excluded. Fails when the
// lines share no gridded overlap with computable slopes.
func RunPatchTest(soundings []Sounding, lineA, lineB string, azimuthDeg, resolution float64) (*PatchTestResult, error) {
	if lineA == lineB {
		return nil, fmt.Errorf("patch test needs two distinct lines, got %q twice", lineA)
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("grid resolution must be positive, got %g", resolution)
	}

	pts := make([]patchPoint, 0, len(soundings))
	var haveA, haveB bool
	for i := range soundings {
		s := &soundings[i]
		if s.Flag.Rejected() {
			continue
		}
		var line int
		switch s.LineID {
		case lineA:
			line, haveA = 0, true
		case lineB:
			line, haveB = 1, true
		default:
			continue
		}
		pts = append(pts, patchPoint{x: s.X, y: s.Y, z: s.Z, line: line})
	}
	if !haveA || !haveB {
		return nil, fmt.Errorf("patch test needs soundings from both lines (%s: %v, %s: %v)", lineA, haveA, lineB, haveB)
	}

	rotateToModelFrame(pts, azimuthDeg)
	g := gridPatchPoints(pts, resolution)

	a, l, err := buildPatchMatrices(g)
	if err != nil {
		return nil, err
	}
	x, err := solvePatchLeastSquares(a, l)
	if err != nil {
		return nil, err
	}

	res := &PatchTestResult{Lines: [2]string{lineA, lineB}}
	for col := 0; col < 2; col++ {
		res.RollDeg[col] = geo.Rad2Deg(x.At(0, col))
		res.PitchDeg[col] = geo.Rad2Deg(x.At(1, col))
		res.HeadingDeg[col] = geo.Rad2Deg(x.At(2, col))
		res.XTranslation[col] = x.At(3, col)
		res.YTranslation[col] = x.At(4, col)
		res.HScaleFactor[col] = x.At(5, col)
	}
	opsf("%s", res)
	return res, nil
}

type patchPoint struct {
	x, y, z float64
	line    int
}

// rotateToModelFrame rotates all points counterclockwise about the minimum
// corner so the line azimuth faces east: +x forward for the sonar, +y
// starboard after the flip implied by the model frame.
func rotateToModelFrame(pts []patchPoint, azimuthDeg float64) {
	ang := geo.Deg2Rad(azimuthDeg - 90)
	cosAz, sinAz := math.Cos(ang), math.Sin(ang)

	minX, minY := math.Inf(1), math.Inf(1)
	for i := range pts {
		minX = math.Min(minX, pts[i].x)
		minY = math.Min(minY, pts[i].y)
	}
	for i := range pts {
		cx := pts[i].x - minX
		cy := pts[i].y - minY
		pts[i].x = minX + cosAz*cx - sinAz*cy
		pts[i].y = minY + sinAz*cx + cosAz*cy
	}
}

// patchGrid is a single-resolution mean-depth surface with per-line layers.
type patchGrid struct {
	minX, minY float64
	rez        float64
	nx, ny     int

	depth []float64 // combined mean depth per cell, NaN when empty
	lineZ [2][]float64
}

func (g *patchGrid) idx(ix, iy int) int { return iy*g.nx + ix }

func gridPatchPoints(pts []patchPoint, rez float64) *patchGrid {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range pts {
		minX = math.Min(minX, pts[i].x)
		maxX = math.Max(maxX, pts[i].x)
		minY = math.Min(minY, pts[i].y)
		maxY = math.Max(maxY, pts[i].y)
	}
	nx := int(math.Floor((maxX-minX)/rez)) + 1
	ny := int(math.Floor((maxY-minY)/rez)) + 1

	g := &patchGrid{minX: minX, minY: minY, rez: rez, nx: nx, ny: ny}
	n := nx * ny
	sum := make([]float64, n)
	cnt := make([]int, n)
	var lineSum [2][]float64
	var lineCnt [2][]int
	for l := 0; l < 2; l++ {
		lineSum[l] = make([]float64, n)
		lineCnt[l] = make([]int, n)
	}

	for i := range pts {
		ix := int(math.Floor((pts[i].x - minX) / rez))
		iy := int(math.Floor((pts[i].y - minY) / rez))
		k := g.idx(ix, iy)
		sum[k] += pts[i].z
		cnt[k]++
		lineSum[pts[i].line][k] += pts[i].z
		lineCnt[pts[i].line][k]++
	}

	g.depth = make([]float64, n)
	for l := 0; l < 2; l++ {
		g.lineZ[l] = make([]float64, n)
	}
	for k := 0; k < n; k++ {
		if cnt[k] > 0 {
			g.depth[k] = sum[k] / float64(cnt[k])
		} else {
			g.depth[k] = math.NaN()
		}
		for l := 0; l < 2; l++ {
			if lineCnt[l][k] > 0 {
				g.lineZ[l][k] = lineSum[l][k] / float64(lineCnt[l][k])
			} else {
				g.lineZ[l][k] = math.NaN()
			}
		}
	}
	return g
}

// slopes returns the central-difference surface slopes at a cell, or false
// when a neighbor is missing.
func (g *patchGrid) slopes(ix, iy int) (sx, sy float64, ok bool) {
	if ix <= 0 || ix >= g.nx-1 || iy <= 0 || iy >= g.ny-1 {
		return 0, 0, false
	}
	xm, xp := g.depth[g.idx(ix-1, iy)], g.depth[g.idx(ix+1, iy)]
	ym, yp := g.depth[g.idx(ix, iy-1)], g.depth[g.idx(ix, iy+1)]
	if math.IsNaN(xm) || math.IsNaN(xp) || math.IsNaN(ym) || math.IsNaN(yp) {
		return 0, 0, false
	}
	return (xp - xm) / (2 * g.rez), (yp - ym) / (2 * g.rez), true
}

// buildPatchMatrices assembles the normal equations from the overlap cells:
// A columns are [roll, pitch, heading, x_translation, y_translation,
// h_scale], L columns hold the per-line gridded depths. Returns AᵀA and
// AᵀL.
func buildPatchMatrices(g *patchGrid) (*mat.Dense, *mat.Dense, error) {
	var rows [][6]float64
	var obs [][2]float64
	for iy := 0; iy < g.ny; iy++ {
		for ix := 0; ix < g.nx; ix++ {
			k := g.idx(ix, iy)
			zA, zB := g.lineZ[0][k], g.lineZ[1][k]
			if math.IsNaN(zA) || math.IsNaN(zB) {
				continue
			}
			sx, sy, ok := g.slopes(ix, iy)
			if !ok {
				continue
			}
			d := g.depth[k]
			yNode := g.minY + (float64(iy)+0.5)*g.rez
			rows = append(rows, [6]float64{
				sy*d - yNode,
				sx * d,
				sx * yNode,
				sx,
				sy,
				sy * yNode,
			})
			obs = append(obs, [2]float64{zA, zB})
		}
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no valid overlap between the two lines")
	}

	a := mat.NewDense(len(rows), 6, nil)
	l := mat.NewDense(len(rows), 2, nil)
	for i := range rows {
		for j := 0; j < 6; j++ {
			a.Set(i, j, rows[i][j])
		}
		l.Set(i, 0, obs[i][0])
		l.Set(i, 1, obs[i][1])
	}

	var ata, atl mat.Dense
	ata.Mul(a.T(), a)
	atl.Mul(a.T(), l)
	return &ata, &atl, nil
}

// solvePatchLeastSquares solves the (possibly rank-deficient) normal system
// with a minimum-norm SVD solution.
func solvePatchLeastSquares(a, b *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("patch test SVD failed to converge")
	}
	values := svd.Values(nil)
	rank := 0
	tol := 1e-10 * values[0]
	for _, v := range values {
		if v > tol {
			rank++
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("patch test system has zero rank")
	}
	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	return &x, nil
}
