package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pelagic-data/bathy.report/internal/geo"
	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// InstallKey identifies the installation geometry for one head on one line.
type InstallKey struct {
	LineID string
	HeadID int
}

// Processor executes the per-chunk stage transforms over a fixed set of
// inputs: the chunked pings, the auxiliary series, the sound velocity
// snapshot and the run configuration. Intermediates live in memory per
// chunk; a chunk arriving at a stage whose upstream intermediates are
// missing reports stale and restarts from its durable inputs.
type Processor struct {
	Attitude     *sonar.Series
	Navigation   *sonar.Series
	HasAltitude  bool
	Profiles     *sonar.ProfileSnapshot
	Installation map[InstallKey]sonar.InstallationOffsets
	CRS          *geo.CRS

	VerticalRef     sonar.VerticalReference
	DatumSeparation float64
	HasSeparation   bool
	TieBreak        sonar.CastTieBreak
	Uncertainty     sonar.UncertaintyConfig

	mu     sync.Mutex
	chunks map[ChunkKey]*chunkState
}

// chunkState holds one chunk's in-memory intermediates, filled stage by
// stage.
type chunkState struct {
	chunk     sonar.Chunk
	baseIndex int // ping index of the chunk's first ping within its line

	// oriented
	times       []time.Time
	roll, pitch []float64
	heading     []float64
	heave       []float64
	attValid    []bool
	orientation []*sonar.OrientationVectors

	// sv_corrected
	traces    []*sonar.RayTraceResult
	surfaceSV []float64
	lat, lon  []float64
	alt       []float64
	navValid  []bool

	// georeferenced
	positions []*sonar.GeoreferencedPing
	depths    [][]float64
	speed     float64

	// uncertainty_computed
	soundings []sonar.Sounding
}

// NewProcessor indexes the chunks and computes per-chunk base ping indexes
// so soundings carry line-relative back-references.
func NewProcessor(chunks []sonar.Chunk) *Processor {
	p := &Processor{chunks: make(map[ChunkKey]*chunkState, len(chunks))}
	base := make(map[string]int)
	for _, c := range chunks {
		key := ChunkKey{LineID: c.LineID, ChunkIndex: c.Index}
		p.chunks[key] = &chunkState{chunk: c, baseIndex: base[c.LineID]}
		base[c.LineID] += len(c.Pings)
	}
	return p
}

// Keys returns every chunk key known to the processor.
func (p *Processor) Keys() []ChunkKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChunkKey, 0, len(p.chunks))
	for k := range p.chunks {
		out = append(out, k)
	}
	return out
}

// Execute runs one stage's transform for one chunk. It is the Runner's
// StageFunc: distinct chunks may execute concurrently, but the scheduler
// never hands out two stages of the same chunk at once, so per-chunk state
// needs no locking beyond the map access.
func (p *Processor) Execute(ctx context.Context, key ChunkKey, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	st, ok := p.chunks[key]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown chunk %s", key)
	}

	switch stage {
	case StageUnprocessed:
		return p.orient(st)
	case StageOriented:
		return p.svCorrect(key, st)
	case StageSVCorrected:
		return p.georeference(key, st)
	case StageGeoreferenced:
		return p.computeUncertainty(key, st)
	case StageUncertaintyComputed:
		return p.finalize(key, st)
	default:
		return fmt.Errorf("chunk %s: no transform for stage %s", key, stage)
	}
}

// Soundings returns the finished soundings of one chunk.
func (p *Processor) Soundings(key ChunkKey) ([]sonar.Sounding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.chunks[key]
	if !ok || st.soundings == nil {
		return nil, false
	}
	return st.soundings, true
}

// RestoreSoundings seeds one chunk's finished soundings, letting a
// resumed run keep a completed chunk without recomputing it. The payload
// must carry exactly one sounding per beam of the chunk.
func (p *Processor) RestoreSoundings(key ChunkKey, soundings []sonar.Sounding) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.chunks[key]
	if !ok {
		return fmt.Errorf("unknown chunk %s", key)
	}
	if len(soundings) != st.chunk.BeamTotal() {
		return fmt.Errorf("chunk %s: restored payload holds %d soundings, chunk has %d beams",
			key, len(soundings), st.chunk.BeamTotal())
	}
	st.soundings = soundings
	return nil
}

// LineSoundings collects the finished soundings of one line across its
// chunks, ordered by chunk index.
func (p *Processor) LineSoundings(lineID string) []sonar.Sounding {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sonar.Sounding
	for idx := 0; ; idx++ {
		st, ok := p.chunks[ChunkKey{LineID: lineID, ChunkIndex: idx}]
		if !ok {
			break
		}
		out = append(out, st.soundings...)
	}
	return out
}

// orient interpolates attitude onto ping times and builds the per-ping
// pointing geometry. Running it again (after a stale restart) resets every
// downstream intermediate.
func (p *Processor) orient(st *chunkState) error {
	pings := st.chunk.Pings
	n := len(pings)

	st.times = make([]time.Time, n)
	for i := range pings {
		st.times[i] = pings[i].Time
	}

	att := p.Attitude.InterpolateAt(st.times)
	st.roll = att.Channels["roll"]
	st.pitch = att.Channels["pitch"]
	st.heading = att.Channels["heading"]
	st.heave = att.Channels["heave"]
	st.attValid = att.Valid
	if err := att.Err(); err != nil {
		diagf("chunk %s/%d: %d pings outside attitude span", st.chunk.LineID, st.chunk.Index, len(att.OutOfRange))
	}

	st.orientation = make([]*sonar.OrientationVectors, n)
	for i := range pings {
		inst, ok := p.Installation[InstallKey{LineID: st.chunk.LineID, HeadID: pings[i].HeadID}]
		if !ok {
			return fmt.Errorf("no installation geometry for line %s head %d", st.chunk.LineID, pings[i].HeadID)
		}
		starters := sonar.BuildStarterVectors(pings[i].BeamAngle, inst)
		st.orientation[i] = sonar.BuildOrientationVectors(starters, st.roll[i], st.pitch[i], st.heading[i])
	}

	// Drop downstream intermediates from any previous pass.
	st.traces, st.surfaceSV = nil, nil
	st.lat, st.lon, st.alt, st.navValid = nil, nil, nil, nil
	st.positions, st.depths = nil, nil
	st.soundings = nil
	return nil
}

// svCorrect selects the applicable cast per ping and ray-traces every beam
// through it. Navigation is interpolated here because the location
// tie-break needs per-ping positions; georeferencing reuses the result.
func (p *Processor) svCorrect(key ChunkKey, st *chunkState) error {
	if st.orientation == nil {
		return &sonar.StaleInputError{LineID: key.LineID, ChunkID: key.ChunkIndex, Stage: StageOriented.String()}
	}
	if p.Profiles == nil || p.Profiles.Empty() {
		return fmt.Errorf("chunk %s: no sound velocity casts registered", key)
	}

	nav := p.Navigation.InterpolateAt(st.times)
	st.lat = nav.Channels["lat"]
	st.lon = nav.Channels["lon"]
	st.alt = nav.Channels["altitude"]
	st.navValid = nav.Valid

	pings := st.chunk.Pings
	st.traces = make([]*sonar.RayTraceResult, len(pings))
	st.surfaceSV = make([]float64, len(pings))
	for i := range pings {
		cast := p.Profiles.ApplicableCast(pings[i].Time, st.lat[i], st.lon[i], st.navValid[i], p.TieBreak)
		if cast == nil {
			return fmt.Errorf("chunk %s: no applicable cast for ping %d", key, i)
		}
		st.traces[i] = sonar.RayTrace(cast, pings[i].TravelTime, st.orientation[i].LaunchAngleDeg)
		st.surfaceSV[i] = cast.Velocity[0]
	}
	return nil
}

// georeference projects every ping into the target frame and resolves
// depths against the configured vertical reference.
func (p *Processor) georeference(key ChunkKey, st *chunkState) error {
	if st.traces == nil {
		return &sonar.StaleInputError{LineID: key.LineID, ChunkID: key.ChunkIndex, Stage: StageSVCorrected.String()}
	}

	pings := st.chunk.Pings
	st.positions = make([]*sonar.GeoreferencedPing, len(pings))
	st.depths = make([][]float64, len(pings))
	for i := range pings {
		inst := p.Installation[InstallKey{LineID: key.LineID, HeadID: pings[i].HeadID}]
		gp := sonar.GeoreferencePing(p.CRS, st.lat[i], st.lon[i],
			st.roll[i], st.pitch[i], st.heading[i], inst, st.traces[i], st.orientation[i].AzimuthDeg)
		st.positions[i] = gp

		vctx := sonar.VerticalContext{
			Heave:           st.heave[i],
			Altitude:        altAt(st.alt, i),
			HasAltitude:     p.HasAltitude && st.navValid[i],
			DatumSeparation: p.DatumSeparation,
			HasSeparation:   p.HasSeparation,
		}
		z, err := sonar.ResolveVertical(p.VerticalRef, inst, vctx, gp.Z)
		if err != nil {
			return fmt.Errorf("chunk %s ping %d: %w", key, i, err)
		}
		st.depths[i] = z
	}

	st.speed = chunkSpeed(st)
	return nil
}

// computeUncertainty propagates the configured error model per beam and
// assembles the final soundings.
func (p *Processor) computeUncertainty(key ChunkKey, st *chunkState) error {
	if st.positions == nil {
		return &sonar.StaleInputError{LineID: key.LineID, ChunkID: key.ChunkIndex, Stage: StageGeoreferenced.String()}
	}

	pings := st.chunk.Pings
	soundings := make([]sonar.Sounding, 0, st.chunk.BeamTotal())
	for i := range pings {
		tpu := sonar.ComputeTPU(p.Uncertainty,
			st.traces[i].Depth, st.traces[i].Horizontal, st.orientation[i].LaunchAngleDeg,
			st.speed, st.surfaceSV[i])

		flags := st.positions[i].Flags
		for b := 0; b < pings[i].BeamCount(); b++ {
			flag := flags[b]
			if !st.attValid[i] || !st.navValid[i] {
				flag |= sonar.QualityUninterpolatable
			}
			soundings = append(soundings, sonar.Sounding{
				X:         st.positions[i].X[b],
				Y:         st.positions[i].Y[b],
				Z:         st.depths[i][b],
				TVU:       tpu.TVU[b],
				THU:       tpu.THU[b],
				LineID:    key.LineID,
				PingIndex: st.baseIndex + i,
				HeadID:    pings[i].HeadID,
				BeamIndex: b,
				Flag:      flag,
			})
		}
	}
	st.soundings = soundings
	tracef("chunk %s produced %d soundings", key, len(soundings))
	return nil
}

// finalize is the last transition's check before a chunk goes complete: the
// finished soundings must exist. There is no further computation here;
// persistence of completed chunks is the caller's concern.
func (p *Processor) finalize(key ChunkKey, st *chunkState) error {
	if st.soundings == nil {
		return &sonar.StaleInputError{LineID: key.LineID, ChunkID: key.ChunkIndex, Stage: StageUncertaintyComputed.String()}
	}
	return nil
}

func altAt(alt []float64, i int) float64 {
	if alt == nil {
		return 0
	}
	return alt[i]
}

// chunkSpeed estimates speed over ground from the displacement between
// the chunk's first and last nav-valid pings, used by the latency term of
// the uncertainty model. Pings outside the navigation span carry zeroed
// positions and must not contribute.
func chunkSpeed(st *chunkState) float64 {
	first, last := -1, -1
	for i := range st.navValid {
		if !st.navValid[i] {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 || first == last {
		return 0
	}
	dt := st.times[last].Sub(st.times[first]).Seconds()
	if dt <= 0 {
		return 0
	}
	perLat, perLon := geo.MetersPerDegree(st.lat[first])
	dNorth := (st.lat[last] - st.lat[first]) * perLat
	dEast := (st.lon[last] - st.lon[first]) * perLon
	return math.Hypot(dNorth, dEast) / dt
}
