package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// VersionKey is the input snapshot tuple a cached intermediate was
// computed against. A read with a newer tuple detects staleness without
// inspecting the payload.
type VersionKey struct {
	Nav    uint64
	SVP    uint64
	Config uint64
}

// CacheStore persists per-chunk, per-stage intermediate results so a
// restarted run resumes from its durable inputs instead of recomputing
// everything.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore creates a CacheStore backed by the given database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

// Put stores a stage payload for a chunk, overwriting any previous entry
// for the same (line, chunk, stage). Writes are idempotent: re-running a
// stage with the same inputs replaces the row with identical content.
func (c *CacheStore) Put(lineID string, chunkIndex int, stage string, v VersionKey, payload []byte) error {
	_, err := c.db.Exec(`
		INSERT INTO chunk_cache (line_id, chunk_index, stage, nav_version, svp_version, config_version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (line_id, chunk_index, stage) DO UPDATE SET
			nav_version = excluded.nav_version,
			svp_version = excluded.svp_version,
			config_version = excluded.config_version,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`,
		lineID, chunkIndex, stage, int64(v.Nav), int64(v.SVP), int64(v.Config), payload)
	if err != nil {
		return fmt.Errorf("caching %s/%d stage %s: %w", lineID, chunkIndex, stage, err)
	}
	return nil
}

// Get returns the cached payload for a chunk stage. ok is false when no
// entry exists. An entry computed against a different version tuple
// returns a *sonar.StaleInputError; callers recover by re-running the
// chunk from its durable inputs.
func (c *CacheStore) Get(lineID string, chunkIndex int, stage string, v VersionKey) (payload []byte, ok bool, err error) {
	var nav, svp, cfg int64
	row := c.db.QueryRow(`
		SELECT nav_version, svp_version, config_version, payload
		FROM chunk_cache WHERE line_id = ? AND chunk_index = ? AND stage = ?`,
		lineID, chunkIndex, stage)
	if err := row.Scan(&nav, &svp, &cfg, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stored := VersionKey{Nav: uint64(nav), SVP: uint64(svp), Config: uint64(cfg)}
	if stored != v {
		return nil, false, &sonar.StaleInputError{LineID: lineID, ChunkID: chunkIndex, Stage: stage}
	}
	return payload, true, nil
}

// InvalidateLine drops every cached entry of one line.
func (c *CacheStore) InvalidateLine(lineID string) error {
	_, err := c.db.Exec(`DELETE FROM chunk_cache WHERE line_id = ?`, lineID)
	return err
}

// InvalidateStage drops the cached entries of one stage across all lines,
// used for stage-scoped invalidation when a stage's configuration changes.
func (c *CacheStore) InvalidateStage(stage string) error {
	_, err := c.db.Exec(`DELETE FROM chunk_cache WHERE stage = ?`, stage)
	return err
}
