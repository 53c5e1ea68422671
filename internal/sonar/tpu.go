package sonar

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// UncertaintyConfig holds the one-sigma magnitudes of the modeled error
// sources. A zero value disables its term; there is no separate enable
// switch.
type UncertaintyConfig struct {
	HorizontalNavStd float64 `json:"horizontal_nav_std"` // meters
	VerticalNavStd   float64 `json:"vertical_nav_std"`   // meters
	HeaveStd         float64 `json:"heave_std"`          // meters
	RollStdDeg       float64 `json:"roll_std_deg"`
	PitchStdDeg      float64 `json:"pitch_std_deg"`
	HeadingStdDeg    float64 `json:"heading_std_deg"`
	BeamAngleStdDeg  float64 `json:"beam_angle_std_deg"`
	SoundVelocityStd float64 `json:"sound_velocity_std"` // m/s
	LatencyStd       float64 `json:"latency_std"`        // seconds
}

// TPUResult holds per-beam total propagated uncertainty, one-sigma meters.
type TPUResult struct {
	TVU []float64
	THU []float64
}

// ComputeTPU combines the configured error sources into total vertical and
// horizontal uncertainty per beam, by root sum of squares. depth and
// horizontal are the ray-traced beam geometry, speedMps the vessel speed
// over ground at ping time, and surfaceSV the sound velocity at the
// transducer. The computation is deterministic and allocates only its
// outputs.
func ComputeTPU(cfg UncertaintyConfig, depth, horizontal, launchAngleDeg []float64, speedMps, surfaceSV float64) *TPUResult {
	n := len(depth)
	res := &TPUResult{TVU: make([]float64, n), THU: make([]float64, n)}

	rollStd := geo.Deg2Rad(cfg.RollStdDeg)
	pitchStd := geo.Deg2Rad(cfg.PitchStdDeg)
	headingStd := geo.Deg2Rad(cfg.HeadingStdDeg)
	beamStd := geo.Deg2Rad(cfg.BeamAngleStdDeg)

	for i := 0; i < n; i++ {
		d, h := depth[i], horizontal[i]
		slant := math.Hypot(d, h)
		theta := geo.Deg2Rad(launchAngleDeg[i])

		// Vertical: an attitude or beam-angle error of dθ swings the beam
		// endpoint by roughly slant·sin(θ)·dθ vertically; a relative sound
		// velocity error scales the whole depth.
		var tvu2 float64
		tvu2 += sq(cfg.VerticalNavStd)
		tvu2 += sq(cfg.HeaveStd)
		tvu2 += sq(slant * math.Sin(theta) * rollStd)
		tvu2 += sq(slant * math.Sin(theta) * pitchStd)
		tvu2 += sq(slant * math.Sin(theta) * beamStd)
		if surfaceSV > 0 {
			tvu2 += sq(d * cfg.SoundVelocityStd / surfaceSV)
		}

		// Horizontal: heading error sweeps the beam arm sideways, angular
		// errors displace the endpoint by slant·cos(θ)·dθ, and timing
		// latency translates the whole ping along track.
		var thu2 float64
		thu2 += sq(cfg.HorizontalNavStd)
		thu2 += sq(h * headingStd)
		thu2 += sq(slant * math.Cos(theta) * rollStd)
		thu2 += sq(slant * math.Cos(theta) * beamStd)
		thu2 += sq(speedMps * cfg.LatencyStd)

		res.TVU[i] = math.Sqrt(tvu2)
		res.THU[i] = math.Sqrt(thu2)
	}
	return res
}

func sq(v float64) float64 { return v * v }

// CalcMinVar returns the minimum finite value of a variable across
// soundings, skipping NaN. Returns NaN when no finite value exists.
func CalcMinVar(values []float64) float64 {
	return reduceVar(values, floats.Min)
}

// CalcMaxVar returns the maximum finite value of a variable across
// soundings, skipping NaN. Returns NaN when no finite value exists.
func CalcMaxVar(values []float64) float64 {
	return reduceVar(values, floats.Max)
}

func reduceVar(values []float64, reduce func([]float64) float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	return reduce(finite)
}
