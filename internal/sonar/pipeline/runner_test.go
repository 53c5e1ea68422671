package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

func TestRunner_ProcessesAllChunksToComplete(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	for i := 0; i < 4; i++ {
		b.Register(key("l1", i))
	}

	var mu sync.Mutex
	ran := make(map[string]int)
	runner := &Runner{
		Board:   b,
		Workers: 3,
		Metrics: NewMetrics(),
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			mu.Lock()
			ran[fmt.Sprintf("%s@%s", k, stage)]++
			mu.Unlock()
			return nil
		},
	}

	require.NoError(t, runner.Run(context.Background()))

	counts := b.Counts()
	assert.Equal(t, 4, counts[StageComplete])
	// Each chunk ran every stage exactly once.
	assert.Len(t, ran, 4*5)
	for k, n := range ran {
		assert.Equal(t, 1, n, k)
	}
}

func TestRunner_StaleInputReschedulesFromScratch(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	b.Register(key("l1", 0))

	var mu sync.Mutex
	staleOnce := true
	var stages []Stage
	runner := &Runner{
		Board:   b,
		Workers: 1,
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			mu.Lock()
			defer mu.Unlock()
			stages = append(stages, stage)
			if stage == StageSVCorrected && staleOnce {
				staleOnce = false
				return &sonar.StaleInputError{LineID: k.LineID, ChunkID: k.ChunkIndex, Stage: stage.String()}
			}
			return nil
		},
	}

	require.NoError(t, runner.Run(context.Background()))

	counts := b.Counts()
	assert.Equal(t, 1, counts[StageComplete])
	// The chunk restarted from unprocessed after going stale mid-run.
	assert.Equal(t, []Stage{
		StageUnprocessed, StageOriented, StageSVCorrected,
		StageUnprocessed, StageOriented, StageSVCorrected, StageGeoreferenced, StageUncertaintyComputed,
	}, stages)
}

func TestRunner_FailureLeavesChunkRetryable(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	b.Register(key("l1", 0))

	attempts := 0
	var mu sync.Mutex
	runner := &Runner{
		Board:   b,
		Workers: 1,
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			mu.Lock()
			defer mu.Unlock()
			if stage == StageGeoreferenced {
				attempts++
				if attempts < 3 {
					return fmt.Errorf("projection not ready")
				}
			}
			return nil
		},
	}

	require.NoError(t, runner.Run(context.Background()))
	counts := b.Counts()
	assert.Equal(t, 1, counts[StageComplete])
	assert.Equal(t, 3, attempts)
}

func TestRunner_PermanentFailureGivesUp(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	b.Register(key("l1", 0))
	b.Register(key("l1", 1))

	var mu sync.Mutex
	attempts := 0
	runner := &Runner{
		Board:   b,
		Workers: 2,
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			mu.Lock()
			defer mu.Unlock()
			if k.ChunkIndex == 0 && stage == StageSVCorrected {
				attempts++
				return fmt.Errorf("no applicable cast")
			}
			return nil
		},
	}

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up")
	assert.Equal(t, maxStageAttempts, attempts)

	// The healthy chunk still finished.
	counts := b.Counts()
	assert.Equal(t, 1, counts[StageComplete])
	st, ok := b.Status(key("l1", 0))
	require.True(t, ok)
	assert.Equal(t, StageSVCorrected, st.Stage)
	assert.Contains(t, st.LastError, "no applicable cast")
}

func TestRunner_ContextCancellation(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	for i := 0; i < 8; i++ {
		b.Register(key("l1", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	runner := &Runner{
		Board:   b,
		Workers: 2,
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			once.Do(cancel)
			return nil
		},
	}

	err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing is left claimed; a fresh run resumes from durable state.
	runner2 := &Runner{
		Board:   b,
		Workers: 2,
		Exec:    func(ctx context.Context, k ChunkKey, stage Stage) error { return nil },
	}
	require.NoError(t, runner2.Run(context.Background()))
	assert.Equal(t, 8, b.Counts()[StageComplete])
}

func TestRunner_ParallelChunksSerializedTransitions(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()
	for i := 0; i < 6; i++ {
		b.Register(key("l1", i))
	}

	// Track that no chunk ever has two stages in flight at once.
	var mu sync.Mutex
	inFlight := make(map[ChunkKey]bool)
	runner := &Runner{
		Board:   b,
		Workers: 4,
		Exec: func(ctx context.Context, k ChunkKey, stage Stage) error {
			mu.Lock()
			if inFlight[k] {
				mu.Unlock()
				return fmt.Errorf("chunk %s already in flight", k)
			}
			inFlight[k] = true
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight[k] = false
			mu.Unlock()
			return nil
		},
	}

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, 6, b.Counts()[StageComplete])
}
