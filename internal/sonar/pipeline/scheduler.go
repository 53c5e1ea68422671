package pipeline

// Action is one unit of schedulable work: run the named stage's transform
// for the chunk, then advance it.
type Action struct {
	Key   ChunkKey
	Stage Stage
}

// ReturnNextAction claims the least-progressed runnable chunk and returns
// the stage to execute for it. Stale chunks restart from unprocessed and
// schedule ahead of everything else. Ties go to registration order, so
// scheduling is deterministic. Returns false when no work is claimable;
// the caller releases the claim with Release after finishing the stage.
func (b *StatusBoard) ReturnNextAction() (Action, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bestIdx := -1
	bestStage := StageComplete
	for i, key := range b.order {
		st := b.chunks[key]
		if b.claimed[key] || st.Stage == StageComplete || st.Failures >= maxStageAttempts {
			continue
		}
		effective := st.Stage
		if st.Stage == StageStale {
			// Stale restarts from scratch and outranks normal work.
			effective = StageUnprocessed - 1
		}
		if bestIdx == -1 || effective < bestStage {
			bestIdx = i
			bestStage = effective
		}
	}
	if bestIdx == -1 {
		return Action{}, false
	}

	key := b.order[bestIdx]
	st := b.chunks[key]
	if st.Stage == StageStale {
		st.Stage = StageUnprocessed
		st.UpdatedAt = b.clock.Now()
	}
	b.claimed[key] = true
	return Action{Key: key, Stage: st.Stage}, true
}

// ReturnNextUnprocessedChunk claims the first chunk still at unprocessed
// (or stale, which restarts as unprocessed). Used by callers that drive
// whole chunks through every stage themselves rather than stage by stage.
func (b *StatusBoard) ReturnNextUnprocessedChunk() (ChunkKey, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range b.order {
		st := b.chunks[key]
		if b.claimed[key] || st.Failures >= maxStageAttempts {
			continue
		}
		if st.Stage == StageUnprocessed || st.Stage == StageStale {
			if st.Stage == StageStale {
				st.Stage = StageUnprocessed
				st.UpdatedAt = b.clock.Now()
			}
			b.claimed[key] = true
			return key, true
		}
	}
	return ChunkKey{}, false
}

// Release drops a claim taken by ReturnNextAction or
// ReturnNextUnprocessedChunk.
func (b *StatusBoard) Release(key ChunkKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claimed, key)
}

// Idle reports whether no chunk is claimed and none has runnable work.
// Chunks that exhausted their stage attempts no longer count as runnable.
func (b *StatusBoard) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.claimed) > 0 {
		return false
	}
	for _, st := range b.chunks {
		if st.Stage != StageComplete && st.Failures < maxStageAttempts {
			return false
		}
	}
	return true
}
