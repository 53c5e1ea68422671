package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/pelagic-data/bathy.report/internal/timeutil"
)

// Stage is the per-chunk processing state. Stages advance strictly in
// order; StageStale is reachable from any state when an input a chunk
// depends on changes underneath it.
type Stage int

const (
	StageUnprocessed Stage = iota
	StageOriented
	StageSVCorrected
	StageGeoreferenced
	StageUncertaintyComputed
	StageComplete
	StageStale
)

var stageNames = map[Stage]string{
	StageUnprocessed:         "unprocessed",
	StageOriented:            "oriented",
	StageSVCorrected:         "sv_corrected",
	StageGeoreferenced:       "georeferenced",
	StageUncertaintyComputed: "uncertainty_computed",
	StageComplete:            "complete",
	StageStale:               "stale",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage parses a stored stage token.
func ParseStage(s string) (Stage, bool) {
	for stage, name := range stageNames {
		if name == s {
			return stage, true
		}
	}
	return StageUnprocessed, false
}

// Next returns the stage following s in the processing order. Complete and
// stale have no successor; stale chunks restart from unprocessed.
func (s Stage) Next() (Stage, bool) {
	if s >= StageUnprocessed && s < StageComplete {
		return s + 1, true
	}
	return s, false
}

// Terminal reports whether no further forward transition exists.
func (s Stage) Terminal() bool { return s == StageComplete }

// ChunkKey identifies one chunk of one line.
type ChunkKey struct {
	LineID     string
	ChunkIndex int
}

func (k ChunkKey) String() string { return fmt.Sprintf("%s/%d", k.LineID, k.ChunkIndex) }

// maxStageAttempts bounds consecutive failures of one chunk stage. A chunk
// that exhausts its attempts stops scheduling so one bad chunk cannot spin
// the worker pool forever; the failure is reported when the run drains.
const maxStageAttempts = 5

// ChunkStatus is the tracked state of one chunk.
type ChunkStatus struct {
	Key       ChunkKey
	Stage     Stage
	UpdatedAt time.Time
	LastError string
	Failures  int // consecutive failures at the current stage
}

// StatusBoard is the in-memory chunk state machine. All transitions go
// through the board under one lock, so per-chunk transitions are
// serialized even with a parallel worker pool.
type StatusBoard struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	chunks  map[ChunkKey]*ChunkStatus
	order   []ChunkKey
	claimed map[ChunkKey]bool
}

// NewStatusBoard builds an empty board on the given clock.
func NewStatusBoard(clock timeutil.Clock) *StatusBoard {
	return &StatusBoard{
		clock:   clock,
		chunks:  make(map[ChunkKey]*ChunkStatus),
		claimed: make(map[ChunkKey]bool),
	}
}

// Register adds a chunk in the unprocessed state. Registering an existing
// chunk is a no-op.
func (b *StatusBoard) Register(key ChunkKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chunks[key]; ok {
		return
	}
	b.chunks[key] = &ChunkStatus{Key: key, Stage: StageUnprocessed, UpdatedAt: b.clock.Now()}
	b.order = append(b.order, key)
}

// Restore seeds a chunk at a known stage, used when resuming from the
// durable status store.
func (b *StatusBoard) Restore(key ChunkKey, stage Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks[key] = &ChunkStatus{Key: key, Stage: stage, UpdatedAt: b.clock.Now()}
	for _, k := range b.order {
		if k == key {
			return
		}
	}
	b.order = append(b.order, key)
}

// Status returns a copy of the chunk's status.
func (b *StatusBoard) Status(key ChunkKey) (ChunkStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.chunks[key]
	if !ok {
		return ChunkStatus{}, false
	}
	return *st, true
}

// Advance moves a chunk from the expected stage to its successor. The
// expected-stage check rejects out-of-order transitions from a worker
// holding a stale view.
func (b *StatusBoard) Advance(key ChunkKey, from Stage) (Stage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.chunks[key]
	if !ok {
		return 0, fmt.Errorf("unknown chunk %s", key)
	}
	if st.Stage != from {
		return 0, fmt.Errorf("chunk %s is %s, cannot advance from %s", key, st.Stage, from)
	}
	next, ok := from.Next()
	if !ok {
		return 0, fmt.Errorf("chunk %s: no transition from %s", key, from)
	}
	st.Stage = next
	st.UpdatedAt = b.clock.Now()
	st.LastError = ""
	st.Failures = 0
	tracef("chunk %s advanced %s -> %s", key, from, next)
	return next, nil
}

// MarkStale moves a chunk to the stale state from any state. Stale chunks
// are rescheduled from the beginning against the durable inputs.
func (b *StatusBoard) MarkStale(key ChunkKey, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.chunks[key]
	if !ok {
		return
	}
	st.Stage = StageStale
	st.UpdatedAt = b.clock.Now()
	st.LastError = reason
	st.Failures = 0
	diagf("chunk %s marked stale: %s", key, reason)
}

// MarkFailed records a stage failure. The chunk keeps its current stage so
// it can be retried; after maxStageAttempts consecutive failures it stops
// scheduling. Only this chunk is affected.
func (b *StatusBoard) MarkFailed(key ChunkKey, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.chunks[key]
	if !ok {
		return
	}
	st.LastError = err.Error()
	st.UpdatedAt = b.clock.Now()
	st.Failures++
	opsf("chunk %s failed at %s (attempt %d): %v", key, st.Stage, st.Failures, err)
}

// InvalidateFrom rolls every chunk that has progressed past the given
// stage back to it. A vertical-reference change, for example, invalidates
// from georeferenced onward: z and uncertainty re-derive, while beam
// orientation, ray trace and horizontal position stand.
func (b *StatusBoard) InvalidateFrom(stage Stage) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, st := range b.chunks {
		if st.Stage != StageStale && st.Stage > stage {
			st.Stage = stage
			st.UpdatedAt = b.clock.Now()
			st.Failures = 0
			n++
		}
	}
	if n > 0 {
		diagf("invalidated %d chunks back to %s", n, stage)
	}
	return n
}

// MarkAllStale marks every chunk stale, used when a run-wide input
// (navigation overwrite, cast removal) changes.
func (b *StatusBoard) MarkAllStale(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, st := range b.chunks {
		st.Stage = StageStale
		st.UpdatedAt = b.clock.Now()
		st.LastError = reason
		st.Failures = 0
	}
	diagf("all %d chunks marked stale: %s", len(b.chunks), reason)
}

// Exhausted returns the keys of incomplete chunks that used up their stage
// attempts, in registration order.
func (b *StatusBoard) Exhausted() []ChunkKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ChunkKey
	for _, k := range b.order {
		st := b.chunks[k]
		if st.Stage != StageComplete && st.Failures >= maxStageAttempts {
			out = append(out, k)
		}
	}
	return out
}

// Counts returns the number of chunks per stage.
func (b *StatusBoard) Counts() map[Stage]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Stage]int)
	for _, st := range b.chunks {
		out[st.Stage]++
	}
	return out
}

// Snapshot returns a copy of every chunk status in registration order.
func (b *StatusBoard) Snapshot() []ChunkStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChunkStatus, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, *b.chunks[k])
	}
	return out
}
