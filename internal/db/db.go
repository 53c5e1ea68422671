// Package db opens the survey project database and manages its schema
// through golang-migrate. One sqlite file holds soundings, cached chunk
// intermediates and processing status for a survey project.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the project database at path and applies
// the connection pragmas. Schema setup is a separate, explicit MigrateUp.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}
