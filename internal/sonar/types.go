// Package sonar implements the multibeam georeferencing and uncertainty
// core: time-series interpolation of attitude and navigation onto ping
// time, beam-vector construction from installation geometry, layered
// sound-velocity ray tracing, coordinate transformation into a target
// reference frame, vertical-reference resolution and total propagated
// uncertainty (TPU).
//
// The pipeline package orchestrates these stages per chunk; this package
// holds the domain types and the pure stage transforms.
package sonar

import "time"

// PingRecord is one transmit event for one sonar head. Records are
// immutable once ingested and grouped into ordered chunks by time; a chunk
// boundary never splits one ping's beams.
type PingRecord struct {
	Time   time.Time // transmit time
	HeadID int       // sonar head identifier (dual-head systems use 0/1)
	LineID string    // survey line this ping belongs to

	// Per-beam measurements, all slices share the same length.
	TravelTime []float64 // two-way travel time, seconds
	BeamAngle  []float64 // athwartship beam angle, degrees, positive to starboard
	TXSector   []int     // transmit sector id per beam
}

// BeamCount returns the number of beams in the ping.
func (p *PingRecord) BeamCount() int {
	return len(p.TravelTime)
}

// InstallationOffsets holds the static mounting geometry for one head on
// one line ("line_xyzrph" from the ingestion collaborator): mounting angles
// in degrees and the lever arm from the transducer to the vessel reference
// point in meters.
//
// Vessel frame convention: X forward, Y starboard, Z down. Roll positive
// port up, pitch positive bow up, yaw positive clockwise from above.
type InstallationOffsets struct {
	MountRollDeg  float64
	MountPitchDeg float64
	MountYawDeg   float64

	// Lever arm, transducer relative to reference point (meters).
	LeverX float64
	LeverY float64
	LeverZ float64

	// WaterlineZ is the vertical offset from the reference point down to
	// the waterline (meters, positive down).
	WaterlineZ float64
}

// NavigationSample is a timestamped position fix. Altitude is the
// ellipsoidal height of the reference point when the source provides one
// (post-processed navigation usually does); HasAltitude distinguishes a
// genuine zero from absence.
type NavigationSample struct {
	Time        time.Time
	LatDeg      float64
	LonDeg      float64
	Altitude    float64
	HasAltitude bool
}

// AttitudeSample is a timestamped attitude and heave measurement.
type AttitudeSample struct {
	Time       time.Time
	RollDeg    float64
	PitchDeg   float64
	HeadingDeg float64
	Heave      float64 // meters, positive up
}

// Cast is a sound velocity profile: ordered (depth, velocity) pairs tagged
// with a reference time and optional location.
type Cast struct {
	ID          string
	Time        time.Time
	LatDeg      float64
	LonDeg      float64
	HasLocation bool

	Depth    []float64 // meters, strictly increasing
	Velocity []float64 // meters/second, same length as Depth
}

// QualityFlag marks per-sounding anomalies. Flags are additive (bitmask) so
// one beam can carry several.
type QualityFlag uint8

const (
	// QualityGood marks a sounding with no recorded anomaly.
	QualityGood QualityFlag = 0
	// QualityDegraded marks a beam whose ray trace was clamped at a
	// profile boundary or total-internal-reflection limit.
	QualityDegraded QualityFlag = 1 << iota
	// QualityUninterpolatable marks a beam whose ping time fell outside
	// the auxiliary series bounds.
	QualityUninterpolatable
	// QualityRejected marks a beam excluded by a filter operation.
	QualityRejected
)

// Degraded reports whether the degraded bit is set.
func (q QualityFlag) Degraded() bool { return q&QualityDegraded != 0 }

// Uninterpolatable reports whether the uninterpolatable bit is set.
func (q QualityFlag) Uninterpolatable() bool { return q&QualityUninterpolatable != 0 }

// Rejected reports whether the rejected bit is set.
func (q QualityFlag) Rejected() bool { return q&QualityRejected != 0 }

// Sounding is one georeferenced, uncertainty-quantified beam solution. The
// Ping/Head/Beam indexes are a back-reference into the source PingRecord,
// never ownership.
type Sounding struct {
	X float64 // easting (or longitude for geographic CRS)
	Y float64 // northing (or latitude)
	Z float64 // depth, positive down, in the selected vertical reference

	TVU float64 // total vertical uncertainty, meters, 1-sigma
	THU float64 // total horizontal uncertainty, meters, 1-sigma

	LineID    string
	PingIndex int
	HeadID    int
	BeamIndex int
	Flag      QualityFlag
}

// VerticalReference selects how final z is computed. It is a closed enum;
// each mode has one pure resolver in vertical.go.
type VerticalReference int

const (
	// VerticalWaterline references depths to the vessel waterline.
	VerticalWaterline VerticalReference = iota
	// VerticalEllipse references depths to the WGS84 ellipsoid using the
	// navigation altitude.
	VerticalEllipse
	// VerticalChartDatum references depths to a chart datum via a
	// configured datum separation from the waterline solution.
	VerticalChartDatum
)

// String returns the configuration token for the mode.
func (v VerticalReference) String() string {
	switch v {
	case VerticalWaterline:
		return "waterline"
	case VerticalEllipse:
		return "ellipse"
	case VerticalChartDatum:
		return "chart_datum"
	default:
		return "unknown"
	}
}

// ParseVerticalReference parses a configuration token into a mode.
func ParseVerticalReference(s string) (VerticalReference, bool) {
	switch s {
	case "waterline":
		return VerticalWaterline, true
	case "ellipse":
		return VerticalEllipse, true
	case "chart_datum":
		return VerticalChartDatum, true
	}
	return VerticalWaterline, false
}
