package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pelagic-data/bathy.report/internal/sonar"
	"github.com/pelagic-data/bathy.report/internal/timeutil"
)

// pollInterval is how long the dispatcher waits before re-checking the
// board when all runnable chunks are claimed.
const pollInterval = 5 * time.Millisecond

// StageFunc executes one stage's transform for one chunk. A returned
// *sonar.StaleInputError reschedules the chunk from scratch instead of
// counting as a failure.
type StageFunc func(ctx context.Context, key ChunkKey, stage Stage) error

// Runner drives chunks through the state machine on a fixed-size worker
// pool. Distinct chunks process in parallel; each chunk's transitions stay
// serialized because a claimed chunk is invisible to other workers.
type Runner struct {
	Board   *StatusBoard
	Workers int
	Exec    StageFunc
	Metrics *Metrics
	Clock   timeutil.Clock
}

// Run processes until every chunk is complete or ctx is cancelled.
// Cancellation is clean at stage granularity: in-flight stages finish or
// abort via ctx, and chunks resume from their last durable stage on the
// next run.
func (r *Runner) Run(ctx context.Context) error {
	if r.Workers <= 0 {
		r.Workers = 1
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var wg sync.WaitGroup
	work := make(chan Action)

	for w := 0; w < r.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for action := range work {
				r.runStage(ctx, action, clock)
			}
		}()
	}

	var runErr error
dispatch:
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break dispatch
		}
		action, ok := r.Board.ReturnNextAction()
		if !ok {
			if r.Board.Idle() {
				break dispatch
			}
			// Work is in flight; wait for claims to release.
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				break dispatch
			case <-clock.After(pollInterval):
			}
			continue
		}
		select {
		case work <- action:
		case <-ctx.Done():
			r.Board.Release(action.Key)
			runErr = ctx.Err()
			break dispatch
		}
	}

	close(work)
	wg.Wait()
	if runErr == nil {
		if exhausted := r.Board.Exhausted(); len(exhausted) > 0 {
			runErr = fmt.Errorf("%d chunks gave up after repeated stage failures (first: %s)",
				len(exhausted), exhausted[0])
		}
	}
	if runErr != nil {
		opsf("pipeline run stopped: %v", runErr)
	}
	return runErr
}

func (r *Runner) runStage(ctx context.Context, action Action, clock timeutil.Clock) {
	defer r.Board.Release(action.Key)
	if r.Metrics != nil {
		r.Metrics.WorkersActive.Inc()
		defer r.Metrics.WorkersActive.Dec()
	}

	start := clock.Now()
	err := r.Exec(ctx, action.Key, action.Stage)
	elapsed := clock.Since(start)
	label := action.Stage.String()

	if err != nil {
		var stale *sonar.StaleInputError
		if errors.As(err, &stale) {
			r.Board.MarkStale(action.Key, stale.Error())
			if r.Metrics != nil {
				r.Metrics.ChunksStale.Inc()
			}
			return
		}
		r.Board.MarkFailed(action.Key, err)
		if r.Metrics != nil {
			r.Metrics.StageFailures.WithLabelValues(label).Inc()
		}
		return
	}

	next, aerr := r.Board.Advance(action.Key, action.Stage)
	if aerr != nil {
		// The chunk moved underneath us (marked stale mid-stage); the
		// scheduler will pick it up again.
		diagf("discarding result for %s: %v", action.Key, aerr)
		return
	}
	if r.Metrics != nil {
		r.Metrics.StagesCompleted.WithLabelValues(label).Inc()
		r.Metrics.StageDuration.WithLabelValues(label).Observe(elapsed.Seconds())
		if next == StageComplete {
			r.Metrics.ChunksComplete.Inc()
		}
	}
}
