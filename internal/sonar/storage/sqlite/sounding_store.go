package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// SoundingStore persists georeferenced soundings per survey line.
type SoundingStore struct {
	db *sql.DB
}

// NewSoundingStore creates a SoundingStore backed by the given database.
func NewSoundingStore(db *sql.DB) *SoundingStore {
	return &SoundingStore{db: db}
}

// ReplaceLineSoundings atomically replaces all soundings of one line.
// Re-running a line is idempotent: the previous results vanish with the
// same transaction that writes the new ones.
func (s *SoundingStore) ReplaceLineSoundings(lineID string, soundings []sonar.Sounding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace for line %s: %w", lineID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM soundings WHERE line_id = ?`, lineID); err != nil {
		return fmt.Errorf("clearing line %s: %w", lineID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO soundings (line_id, ping_index, head_id, beam_index, x, y, z, tvu, thu, flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range soundings {
		snd := &soundings[i]
		if _, err := stmt.Exec(snd.LineID, snd.PingIndex, snd.HeadID, snd.BeamIndex,
			snd.X, snd.Y, snd.Z, snd.TVU, snd.THU, int(snd.Flag)); err != nil {
			return fmt.Errorf("inserting sounding %d of line %s: %w", i, lineID, err)
		}
	}
	return tx.Commit()
}

// SoundingsByLine returns all soundings of one line ordered by ping then
// beam.
func (s *SoundingStore) SoundingsByLine(lineID string) ([]sonar.Sounding, error) {
	rows, err := s.db.Query(`
		SELECT line_id, ping_index, head_id, beam_index, x, y, z, tvu, thu, flag
		FROM soundings WHERE line_id = ?
		ORDER BY ping_index, beam_index`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSoundings(rows)
}

// AllSoundings returns every stored sounding ordered by line, ping, beam.
func (s *SoundingStore) AllSoundings() ([]sonar.Sounding, error) {
	rows, err := s.db.Query(`
		SELECT line_id, ping_index, head_id, beam_index, x, y, z, tvu, thu, flag
		FROM soundings ORDER BY line_id, ping_index, beam_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSoundings(rows)
}

// Lines returns the distinct line ids with stored soundings.
func (s *SoundingStore) Lines() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT line_id FROM soundings ORDER BY line_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanSoundings(rows *sql.Rows) ([]sonar.Sounding, error) {
	var out []sonar.Sounding
	for rows.Next() {
		var snd sonar.Sounding
		var flag int
		if err := rows.Scan(&snd.LineID, &snd.PingIndex, &snd.HeadID, &snd.BeamIndex,
			&snd.X, &snd.Y, &snd.Z, &snd.TVU, &snd.THU, &flag); err != nil {
			return nil, err
		}
		snd.Flag = sonar.QualityFlag(flag)
		out = append(out, snd)
	}
	return out, rows.Err()
}
