package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hydrosense/droughtmap/internal/models"
)

// FetchOverviewCounts aggregates one month's index values into the severity
// buckets plus present/missing counts, entirely in SQL. Bucket boundaries
// are half-open and mirror drought.Class exactly.
func (s *Store) FetchOverviewCounts(datasetKey, index, yyyymm string) (*models.OverviewCounts, error) {
	if _, err := s.ResolveDatasetKey(datasetKey); err != nil {
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

	col := quoteIdent(idx)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE %[1]s IS NOT NULL),
			COUNT(*) FILTER (WHERE %[1]s IS NULL),
			COUNT(*) FILTER (WHERE %[1]s >= 0),
			COUNT(*) FILTER (WHERE %[1]s < 0 AND %[1]s >= -0.8),
			COUNT(*) FILTER (WHERE %[1]s < -0.8 AND %[1]s >= -1.3),
			COUNT(*) FILTER (WHERE %[1]s < -1.3 AND %[1]s >= -1.6),
			COUNT(*) FILTER (WHERE %[1]s < -1.6 AND %[1]s >= -2.0),
			COUNT(*) FILTER (WHERE %[1]s < -2.0)
		FROM %[2]s
		WHERE date = ?
	`, col, table)

	out := &models.OverviewCounts{Date: yyyymm, Index: idx}
	err = s.db.QueryRow(query, dateText(month)).Scan(
		&out.WithValue, &out.Missing, &out.NormalWet,
		&out.D0, &out.D1, &out.D2, &out.D3, &out.D4,
	)
	if err != nil {
		return nil, fmt.Errorf("overview counts: %w", err)
	}
	return out, nil
}

// coverageBounds computes a feature's covered-month bounds: the first and
// last month for which the feature has any series row. A month inside the
// window whose value is null for the requested index still counts as
// covered; it shows up as an explicit gap.
func (s *Store) coverageBounds(table, featureID string) (minD, maxD time.Time, ok bool, err error) {
	var minS, maxS sql.NullString
	query := fmt.Sprintf(
		`SELECT MIN(date), MAX(date) FROM %s WHERE feature_id = ?`,
		table,
	)
	if err = s.db.QueryRow(query, featureID).Scan(&minS, &maxS); err != nil {
		return minD, maxD, false, err
	}
	if !minS.Valid || !maxS.Valid {
		return minD, maxD, false, nil
	}
	if minD, err = parseDateText(minS.String); err != nil {
		return minD, maxD, false, err
	}
	if maxD, err = parseDateText(maxS.String); err != nil {
		return minD, maxD, false, err
	}
	return minD, maxD, true, nil
}

// FetchTimeseriesFull returns the full continuous monthly series for one
// feature: exactly one entry per calendar month from the feature's first to
// last covered month, with explicit nulls for gaps. This keeps chart axes
// stable across features with different coverage.
func (s *Store) FetchTimeseriesFull(datasetKey, featureID, index string) (*models.Timeseries, error) {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return nil, err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return nil, err
	}
	table, err := tsTable(datasetKey)
	if err != nil {
		return nil, err
	}
	name, err := s.FetchFeatureName(stored, featureID)
	if err != nil {
		return nil, err
	}

	minD, maxD, ok, err := s.coverageBounds(table, featureID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.Timeseries{Feature: name, Data: []models.SeriesPoint{}}, nil
	}

	query := fmt.Sprintf(
		`SELECT date, %s FROM %s WHERE feature_id = ? AND date >= ? AND date <= ?`,
		quoteIdent(idx), table,
	)
	rows, err := s.db.Query(query, featureID, dateText(minD), dateText(maxD))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDate := make(map[string]float64)
	for rows.Next() {
		var d string
		var v sql.NullFloat64
		if err := rows.Scan(&d, &v); err != nil {
			return nil, err
		}
		if v.Valid {
			byDate[d] = v.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// SQLite has no date generate_series; walk the months here. The result
	// is the same closed, gap-explicit range.
	var data []models.SeriesPoint
	for m := minD; !m.After(maxD); m = m.AddDate(0, 1, 0) {
		p := models.SeriesPoint{Date: dateText(m)}
		if v, found := byDate[p.Date]; found {
			val := v
			p.Value = &val
		}
		data = append(data, p)
	}

	minMonth := monthText(minD)
	maxMonth := monthText(maxD)
	return &models.Timeseries{
		Feature:  name,
		MinMonth: &minMonth,
		MaxMonth: &maxMonth,
		Data:     data,
	}, nil
}

// ResolveEffectiveMonth maps a requested month to one that actually has a
// value, so the KPI panel never comes up empty just because the selected
// month falls in a gap. The fallback chain is deterministic: clamp to the
// coverage bounds, use an exact hit, else the nearest earlier month, else
// the nearest later one. Notes compose with ";" so callers can explain the
// substitution.
func (s *Store) ResolveEffectiveMonth(datasetKey, featureID, index string, requested time.Time) (time.Time, *float64, string, error) {
	if _, err := s.ResolveDatasetKey(datasetKey); err != nil {
		return requested, nil, "", err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return requested, nil, "", err
	}
	table, err := tsTable(datasetKey)
	if err != nil {
		return requested, nil, "", err
	}

	minD, maxD, ok, err := s.coverageBounds(table, featureID)
	if err != nil {
		return requested, nil, "", err
	}
	if !ok {
		return requested, nil, "no-data", nil
	}

	var notes []string
	eff := requested
	if requested.Before(minD) {
		eff = minD
		notes = append(notes, "clamped-to-start")
	} else if requested.After(maxD) {
		eff = maxD
		notes = append(notes, "clamped-to-end")
	}

	col := quoteIdent(idx)

	var exact sql.NullFloat64
	err = s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM %s WHERE feature_id = ? AND date = ?`, col, table),
		featureID, dateText(eff),
	).Scan(&exact)
	if err != nil && err != sql.ErrNoRows {
		return eff, nil, "", err
	}
	if exact.Valid {
		v := exact.Float64
		return eff, &v, strings.Join(notes, ";"), nil
	}

	var d string
	var v float64
	err = s.db.QueryRow(
		fmt.Sprintf(`
			SELECT date, %[1]s FROM %[2]s
			WHERE feature_id = ? AND date <= ? AND %[1]s IS NOT NULL
			ORDER BY date DESC LIMIT 1
		`, col, table),
		featureID, dateText(eff),
	).Scan(&d, &v)
	if err == nil {
		prev, perr := parseDateText(d)
		if perr != nil {
			return eff, nil, "", perr
		}
		notes = append(notes, "nearest-previous")
		return prev, &v, strings.Join(notes, ";"), nil
	}
	if err != sql.ErrNoRows {
		return eff, nil, "", err
	}

	err = s.db.QueryRow(
		fmt.Sprintf(`
			SELECT date, %[1]s FROM %[2]s
			WHERE feature_id = ? AND date > ? AND %[1]s IS NOT NULL
			ORDER BY date ASC LIMIT 1
		`, col, table),
		featureID, dateText(eff),
	).Scan(&d, &v)
	if err == nil {
		next, perr := parseDateText(d)
		if perr != nil {
			return eff, nil, "", perr
		}
		notes = append(notes, "nearest-next")
		return next, &v, strings.Join(notes, ";"), nil
	}
	if err != sql.ErrNoRows {
		return eff, nil, "", err
	}

	notes = append(notes, "no-value")
	return eff, nil, strings.Join(notes, ";"), nil
}

// FetchValuesUpTo returns all non-null values for a feature at or before
// end (all history when end is nil), in chronological order. This feeds
// both windowed summary statistics and the full-history trend input.
func (s *Store) FetchValuesUpTo(datasetKey, featureID, index string, end *time.Time) ([]float64, error) {
	if _, err := s.ResolveDatasetKey(datasetKey); err != nil {
		return nil, err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return nil, err
	}
	table, err := tsTable(datasetKey)
	if err != nil {
		return nil, err
	}

	col := quoteIdent(idx)
	query := fmt.Sprintf(
		`SELECT %[1]s FROM %[2]s WHERE feature_id = ? AND %[1]s IS NOT NULL`,
		col, table,
	)
	args := []any{featureID}
	if end != nil {
		query += ` AND date <= ?`
		args = append(args, dateText(*end))
	}
	query += ` ORDER BY date`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
