package sonar

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pelagic-data/bathy.report/internal/geo"
)

// Series is an auxiliary time series (attitude, navigation, heave) with one
// or more named channels sampled at shared timestamps. Construction
// validates time ordering once so the per-chunk interpolation path never
// branches per sample.
type Series struct {
	name     string
	times    []float64 // unix seconds
	first    time.Time
	last     time.Time
	channels []seriesChannel
}

type seriesChannel struct {
	name    string
	values  []float64
	angular bool // interpolate on the unit circle (headings)
}

// NewSeries validates timestamps and builds a Series. Timestamps must be
// strictly increasing; violations return a *MalformedSeriesError.
func NewSeries(name string, times []time.Time) (*Series, error) {
	if len(times) == 0 {
		return nil, &MalformedSeriesError{Series: name, Index: 0, Reason: "empty series"}
	}
	ts := make([]float64, len(times))
	ts[0] = unixSeconds(times[0])
	for i := 1; i < len(times); i++ {
		ts[i] = unixSeconds(times[i])
		if ts[i] == ts[i-1] {
			return nil, &MalformedSeriesError{Series: name, Index: i, Reason: "duplicate timestamp"}
		}
		if ts[i] < ts[i-1] {
			return nil, &MalformedSeriesError{Series: name, Index: i, Reason: "timestamps not monotonic"}
		}
	}
	return &Series{
		name:  name,
		times: ts,
		first: times[0],
		last:  times[len(times)-1],
	}, nil
}

// AddChannel attaches a value channel to the series. Angular channels
// (headings in degrees) are interpolated on the unit circle so the 360/0
// wrap does not produce bogus midpoints.
func (s *Series) AddChannel(name string, values []float64, angular bool) error {
	if len(values) != len(s.times) {
		return fmt.Errorf("channel %s: %d values for %d timestamps", name, len(values), len(s.times))
	}
	s.channels = append(s.channels, seriesChannel{name: name, values: values, angular: angular})
	return nil
}

// Name returns the series name used in diagnostics.
func (s *Series) Name() string { return s.name }

// Span returns the inclusive time bounds of the series.
func (s *Series) Span() (time.Time, time.Time) { return s.first, s.last }

// AttitudeSeries builds an interpolation series from attitude samples with
// "roll", "pitch", "heading" (angular) and "heave" channels.
func AttitudeSeries(samples []AttitudeSample) (*Series, error) {
	times := make([]time.Time, len(samples))
	rolls := make([]float64, len(samples))
	pitches := make([]float64, len(samples))
	headings := make([]float64, len(samples))
	heaves := make([]float64, len(samples))
	for i, smp := range samples {
		times[i] = smp.Time
		rolls[i] = smp.RollDeg
		pitches[i] = smp.PitchDeg
		headings[i] = smp.HeadingDeg
		heaves[i] = smp.Heave
	}
	series, err := NewSeries("attitude", times)
	if err != nil {
		return nil, err
	}
	if err := series.AddChannel("roll", rolls, false); err != nil {
		return nil, err
	}
	if err := series.AddChannel("pitch", pitches, false); err != nil {
		return nil, err
	}
	if err := series.AddChannel("heading", headings, true); err != nil {
		return nil, err
	}
	if err := series.AddChannel("heave", heaves, false); err != nil {
		return nil, err
	}
	return series, nil
}

// InterpolationResult holds per-target interpolated channel values.
// Targets outside the series bounds have Valid[i] == false; the
// corresponding OutOfRangeError is retained for diagnostics but the result
// as a whole is usable (affected pings are flagged, not fatal).
type InterpolationResult struct {
	Channels map[string][]float64
	Valid    []bool
	// OutOfRange lists target indexes that fell outside the series span.
	OutOfRange []int
	firstErr   *OutOfRangeError
}

// Err returns the first out-of-range error encountered, or nil when every
// target was interpolatable.
func (r *InterpolationResult) Err() error {
	if r.firstErr == nil {
		return nil
	}
	return r.firstErr
}

// InterpolateAt linearly interpolates every channel onto the target
// timestamps. Extrapolation beyond the series bounds is disallowed: such
// targets are flagged invalid and reported through OutOfRange/Err.
func (s *Series) InterpolateAt(targets []time.Time) *InterpolationResult {
	res := &InterpolationResult{
		Channels: make(map[string][]float64, len(s.channels)),
		Valid:    make([]bool, len(targets)),
	}
	for _, ch := range s.channels {
		res.Channels[ch.name] = make([]float64, len(targets))
	}

	n := len(s.times)
	for i, tgt := range targets {
		tt := unixSeconds(tgt)
		if tt < s.times[0] || tt > s.times[n-1] {
			res.OutOfRange = append(res.OutOfRange, i)
			if res.firstErr == nil {
				res.firstErr = &OutOfRangeError{Series: s.name, At: tgt, First: s.first, Last: s.last}
			}
			continue
		}
		res.Valid[i] = true

		// Bracket: j is the first sample with time >= target.
		j := sort.SearchFloat64s(s.times, tt)
		if j == 0 || s.times[j] == tt {
			for _, ch := range s.channels {
				res.Channels[ch.name][i] = ch.values[j]
			}
			continue
		}
		frac := (tt - s.times[j-1]) / (s.times[j] - s.times[j-1])
		for _, ch := range s.channels {
			a, b := ch.values[j-1], ch.values[j]
			if ch.angular {
				res.Channels[ch.name][i] = lerpAngleDeg(a, b, frac)
			} else {
				res.Channels[ch.name][i] = a + frac*(b-a)
			}
		}
	}
	return res
}

// lerpAngleDeg interpolates between two angles in degrees through the
// shortest arc, returning a value in [0, 360).
func lerpAngleDeg(a, b, frac float64) float64 {
	ar := geo.Deg2Rad(a)
	br := geo.Deg2Rad(b)
	sin := (1-frac)*math.Sin(ar) + frac*math.Sin(br)
	cos := (1-frac)*math.Cos(ar) + frac*math.Cos(br)
	return geo.NormalizeHeading(geo.Rad2Deg(math.Atan2(sin, cos)))
}

// unixSeconds converts a time to float64 unix seconds with nanosecond
// resolution. Aux series and ping clocks both fit comfortably in the 52-bit
// mantissa at this scale.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
