package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hydrosense/droughtmap/internal/drought"
	"github.com/hydrosense/droughtmap/internal/models"
)

// UpsertFeatureBatch bulk-upserts features keyed by (dataset_key,
// feature_id), overwriting name, properties, geometry and envelope on
// conflict. One transaction per batch.
func (s *Store) UpsertFeatureBatch(features []models.Feature) error {
	if len(features) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO features (dataset_key, feature_id, name, props, geom, minx, miny, maxx, maxy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_key, feature_id) DO UPDATE SET
			name = excluded.name,
			props = excluded.props,
			geom = excluded.geom,
			minx = excluded.minx,
			miny = excluded.miny,
			maxx = excluded.maxx,
			maxy = excluded.maxy
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range features {
		if _, err := stmt.Exec(f.DatasetKey, f.FeatureID, f.Name, f.Props, f.Geom, f.MinX, f.MinY, f.MaxX, f.MaxY); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert feature %s/%s: %w", f.DatasetKey, f.FeatureID, err)
		}
	}
	return tx.Commit()
}

// FetchFeatures returns a GeoJSON FeatureCollection for one map viewport:
// every feature of the dataset (optionally bbox-filtered), outer-joined with
// the requested month's index value so features without data still appear
// with value=null. Precomputed trend categories are attached when present.
// The total count is only computed for the first page.
func (s *Store) FetchFeatures(datasetKey, index, yyyymm, bbox string, limit, offset int) (*models.FeatureCollection, error) {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return nil, err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return nil, err
	}
	month, err := ParseYYYYMM(yyyymm)
	if err != nil {
		return nil, err
	}
	table, err := tsTable(datasetKey)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 2000
	}
	if offset < 0 {
		offset = 0
	}

	envelope := ParseBBox(bbox)
	whereBBox := ""
	bboxArgs := []any{}
	if envelope != nil {
		whereBBox = ` AND f.maxx >= ? AND f.minx <= ? AND f.maxy >= ? AND f.miny <= ?`
		bboxArgs = []any{envelope.MinX, envelope.MaxX, envelope.MinY, envelope.MaxY}
	}

	// Properties stay small for fast map loads; richer per-feature data has
	// dedicated endpoints.
	query := fmt.Sprintf(`
		SELECT
			f.feature_id,
			COALESCE(f.name, f.feature_id),
			f.geom,
			json_extract(f.props, '$.Province'),
			ts.%s,
			tr.trend_category
		FROM features f
		LEFT JOIN %s ts
			ON ts.feature_id = f.feature_id
			AND ts.date = ?
		LEFT JOIN trend_stats tr
			ON tr.dataset_key = f.dataset_key
			AND tr.index_name = ?
			AND tr.feature_id = f.feature_id
		WHERE f.dataset_key = ?%s
		ORDER BY f.feature_id
		LIMIT ? OFFSET ?
	`, quoteIdent(idx), table, whereBBox)

	args := append([]any{dateText(month), idx, stored}, bboxArgs...)
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch features: %w", err)
	}
	defer rows.Close()

	features := make([]models.GeoFeature, 0, limit)
	for rows.Next() {
		var (
			id, name, geom string
			province       sql.NullString
			value          sql.NullFloat64
			trendCat       sql.NullString
		)
		if err := rows.Scan(&id, &name, &geom, &province, &value, &trendCat); err != nil {
			return nil, err
		}

		var valPtr *float64
		if value.Valid {
			v := value.Float64
			valPtr = &v
		}
		props := map[string]any{
			"id":        id,
			"name":      name,
			"value":     valPtr,
			"has_value": value.Valid,
			"severity":  drought.ClassForIndex(idx, valPtr),
		}
		if province.Valid {
			props["province"] = province.String
		}
		if trendCat.Valid {
			props["trend"] = trendCat.String
		}
		features = append(features, models.GeoFeature{
			Type:       "Feature",
			Geometry:   json.RawMessage(geom),
			Properties: props,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	meta := models.CollectionMeta{
		Returned: len(features),
		Limit:    limit,
		Offset:   offset,
	}
	if offset == 0 {
		countQuery := `SELECT COUNT(*) FROM features f WHERE f.dataset_key = ?` + whereBBox
		var total int
		if err := s.db.QueryRow(countQuery, append([]any{stored}, bboxArgs...)...).Scan(&total); err != nil {
			return nil, fmt.Errorf("count features: %w", err)
		}
		meta.Total = &total
		meta.Truncated = total > offset+len(features)
	}

	return &models.FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Meta:     meta,
	}, nil
}
