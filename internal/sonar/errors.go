package sonar

import (
	"fmt"
	"time"
)

// MalformedSeriesError reports an auxiliary time series whose timestamps
// are non-monotonic or duplicated. It aborts the chunk that consumed the
// series, not the dataset.
type MalformedSeriesError struct {
	Series string // which series: "attitude", "navigation", ...
	Index  int    // index of the offending sample
	Reason string
}

func (e *MalformedSeriesError) Error() string {
	return fmt.Sprintf("malformed %s series at sample %d: %s", e.Series, e.Index, e.Reason)
}

// OutOfRangeError reports an interpolation target outside the series time
// bounds. Affected pings are flagged uninterpolatable rather than aborting
// the chunk; the error carries the bounds for diagnostics.
type OutOfRangeError struct {
	Series string
	At     time.Time
	First  time.Time
	Last   time.Time
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s series does not cover %s (series spans %s - %s)",
		e.Series, e.At.Format(time.RFC3339Nano), e.First.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}

// DuplicateCastError reports an attempt to register a cast whose timestamp
// collides with an existing cast.
type DuplicateCastError struct {
	CastID string
	At     time.Time
}

func (e *DuplicateCastError) Error() string {
	return fmt.Sprintf("cast %s duplicates existing cast timestamp %s", e.CastID, e.At.Format(time.RFC3339))
}

// StaleInputError reports a read of cached chunk results whose inputs
// changed since they were computed. Callers recover by re-running the
// chunk from its durable inputs.
type StaleInputError struct {
	LineID  string
	ChunkID int
	Stage   string
}

func (e *StaleInputError) Error() string {
	return fmt.Sprintf("chunk %s/%d stage %s: cached results are stale", e.LineID, e.ChunkID, e.Stage)
}
