package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkStatusRow is one chunk's durable processing state.
type ChunkStatusRow struct {
	LineID     string
	ChunkIndex int
	Stage      string
	LastError  string
	UpdatedAt  time.Time
}

// StatusStore persists chunk processing status so interrupted runs resume
// where they stopped.
type StatusStore struct {
	db *sql.DB
}

// NewStatusStore creates a StatusStore backed by the given database.
func NewStatusStore(db *sql.DB) *StatusStore {
	return &StatusStore{db: db}
}

// Upsert records a chunk's current stage.
func (s *StatusStore) Upsert(lineID string, chunkIndex int, stage, lastError string) error {
	_, err := s.db.Exec(`
		INSERT INTO chunk_status (line_id, chunk_index, stage, last_error, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (line_id, chunk_index) DO UPDATE SET
			stage = excluded.stage,
			last_error = excluded.last_error,
			updated_at = CURRENT_TIMESTAMP`,
		lineID, chunkIndex, stage, lastError)
	if err != nil {
		return fmt.Errorf("recording status %s/%d: %w", lineID, chunkIndex, err)
	}
	return nil
}

// All returns every chunk status row ordered by line and chunk.
func (s *StatusStore) All() ([]ChunkStatusRow, error) {
	rows, err := s.db.Query(`
		SELECT line_id, chunk_index, stage, last_error, updated_at
		FROM chunk_status ORDER BY line_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkStatusRow
	for rows.Next() {
		var r ChunkStatusRow
		if err := rows.Scan(&r.LineID, &r.ChunkIndex, &r.Stage, &r.LastError, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordImport notes a completed data import (navigation, SVP) and returns
// its generated id.
func (s *StatusStore) RecordImport(kind, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO imports (id, kind, source) VALUES (?, ?, ?)`, id, kind, source)
	if err != nil {
		return "", fmt.Errorf("recording %s import: %w", kind, err)
	}
	return id, nil
}
