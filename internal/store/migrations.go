package store

import (
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Base schema only. The per-dataset ts_<key> tables are created dynamically
// by the import pipeline from each source file's header.
var migrations = []migration{
	{
		Version:     1,
		Description: "Dataset registry and feature table",
		SQL: `
CREATE TABLE IF NOT EXISTS datasets (
    dataset_key TEXT PRIMARY KEY,
    title TEXT,
    geom_type TEXT,
    min_date TEXT,
    max_date TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS features (
    dataset_key TEXT NOT NULL REFERENCES datasets(dataset_key) ON DELETE CASCADE,
    feature_id TEXT NOT NULL,
    name TEXT,
    props TEXT,
    geom TEXT NOT NULL,
    minx REAL NOT NULL DEFAULT 0,
    miny REAL NOT NULL DEFAULT 0,
    maxx REAL NOT NULL DEFAULT 0,
    maxy REAL NOT NULL DEFAULT 0,
    min_date TEXT,
    max_date TEXT,
    PRIMARY KEY (dataset_key, feature_id)
);

CREATE INDEX IF NOT EXISTS idx_features_envelope ON features(dataset_key, minx, maxx, miny, maxy);
CREATE INDEX IF NOT EXISTS idx_features_name ON features(dataset_key, name);
`,
	},
	{
		Version:     2,
		Description: "Persisted full-history trend statistics",
		SQL: `
CREATE TABLE IF NOT EXISTS trend_stats (
    dataset_key TEXT NOT NULL,
    index_name TEXT NOT NULL,
    feature_id TEXT NOT NULL,
    tau REAL NOT NULL,
    p_value REAL NOT NULL,
    sen_slope REAL NOT NULL,
    trend TEXT NOT NULL,
    trend_category TEXT NOT NULL,
    computed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (dataset_key, index_name, feature_id)
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
