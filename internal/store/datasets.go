package store

import (
	"database/sql"
	"fmt"

	"github.com/hydrosense/droughtmap/internal/models"
)

func monthPtr(d sql.NullString) *string {
	if !d.Valid || d.String == "" {
		return nil
	}
	t, err := parseDateText(d.String)
	if err != nil {
		return nil
	}
	m := monthText(t)
	return &m
}

// ListDatasets lists all imported layers in key order.
func (s *Store) ListDatasets() ([]models.DatasetInfo, error) {
	rows, err := s.db.Query(`
		SELECT dataset_key, COALESCE(title, dataset_key), COALESCE(geom_type, 'Geometry'), min_date, max_date
		FROM datasets
		ORDER BY dataset_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DatasetInfo
	for rows.Next() {
		var d models.Dataset
		if err := rows.Scan(&d.Key, &d.Title, &d.GeomType, &d.MinDate, &d.MaxDate); err != nil {
			return nil, err
		}
		out = append(out, models.DatasetInfo{
			Key:      d.Key,
			Title:    d.Title,
			GeomType: d.GeomType,
			MinMonth: monthPtr(d.MinDate),
			MaxMonth: monthPtr(d.MaxDate),
		})
	}
	return out, rows.Err()
}

// FetchMeta returns lightweight metadata used by the UI to initialize a
// layer: coverage bounds, available indices and feature count.
func (s *Store) FetchMeta(datasetKey string) (*models.DatasetMeta, error) {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return nil, err
	}
	indices, err := s.AvailableIndices(datasetKey)
	if err != nil {
		return nil, err
	}

	var d models.Dataset
	err = s.db.QueryRow(`
		SELECT dataset_key, COALESCE(title, dataset_key), COALESCE(geom_type, 'Geometry'), min_date, max_date
		FROM datasets
		WHERE dataset_key = ?
	`, stored).Scan(&d.Key, &d.Title, &d.GeomType, &d.MinDate, &d.MaxDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, datasetKey)
	}
	if err != nil {
		return nil, err
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM features WHERE dataset_key = ?`, stored).Scan(&count); err != nil {
		return nil, err
	}

	return &models.DatasetMeta{
		DatasetKey:   d.Key,
		Title:        d.Title,
		GeomType:     d.GeomType,
		FeatureCount: count,
		Indices:      indices,
		MinMonth:     monthPtr(d.MinDate),
		MaxMonth:     monthPtr(d.MaxDate),
	}, nil
}

// FetchFeatureName returns the display name for a feature, falling back to
// the id for unnamed or unknown features.
func (s *Store) FetchFeatureName(datasetKey, featureID string) (string, error) {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return "", err
	}
	var name string
	err = s.db.QueryRow(`
		SELECT COALESCE(name, feature_id)
		FROM features
		WHERE dataset_key = ? AND feature_id = ?
	`, stored, featureID).Scan(&name)
	if err == sql.ErrNoRows {
		return featureID, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// UpsertDataset registers a dataset row before any bulk loading, so later
// pipeline steps have a parent to reference.
func (s *Store) UpsertDataset(key, title, geomType string) error {
	if _, err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO datasets (dataset_key, title, geom_type)
		VALUES (?, ?, ?)
		ON CONFLICT(dataset_key) DO UPDATE SET
			title = excluded.title
	`, key, title, geomType)
	return err
}

// SetDatasetGeomType records the geometry kind observed during ingest.
func (s *Store) SetDatasetGeomType(key, geomType string) error {
	_, err := s.db.Exec(`UPDATE datasets SET geom_type = ? WHERE dataset_key = ?`, geomType, key)
	return err
}

// DropDatasetObjects removes everything belonging to one dataset: the
// series table, its features, its trend stats and the registry row. Used by
// replace-mode imports before re-running the chain.
func (s *Store) DropDatasetObjects(key string) error {
	table, err := tsTable(key)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := s.db.Exec(`DELETE FROM trend_stats WHERE lower(dataset_key) = lower(?)`, key); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM features WHERE lower(dataset_key) = lower(?)`, key); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM datasets WHERE lower(dataset_key) = lower(?)`, key); err != nil {
		return err
	}
	s.InvalidateLookupCaches()
	return nil
}

// Analyze refreshes the query planner statistics after a bulk load.
func (s *Store) Analyze() error {
	_, err := s.db.Exec(`ANALYZE`)
	return err
}
