package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hydrosense/droughtmap/internal/trend"
)

// FetchTrendStatsAll computes full-history trend statistics for every
// feature of a dataset in one pass: a single query grouped by feature with
// values ordered by date, then the Mann-Kendall/Sen engine per group. Trend
// is a full-history property independent of any UI date filter; it changes
// only when new data is imported.
func (s *Store) FetchTrendStatsAll(datasetKey, index string) (map[string]trend.Result, error) {
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

	query := fmt.Sprintf(`
		SELECT feature_id, %[1]s
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		ORDER BY feature_id, date
	`, quoteIdent(idx), table)

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("trend values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]trend.Result)
	var (
		current string
		values  []float64
	)
	flush := func() {
		if current != "" {
			out[current] = trend.Compute(values)
		}
	}
	for rows.Next() {
		var fid string
		var v float64
		if err := rows.Scan(&fid, &v); err != nil {
			return nil, err
		}
		if fid != current {
			flush()
			current = fid
			values = values[:0]
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// UpsertTrendStats persists one feature's trend result.
func (s *Store) UpsertTrendStats(datasetKey, index, featureID string, r trend.Result) error {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO trend_stats (dataset_key, index_name, feature_id, tau, p_value, sen_slope, trend, trend_category, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_key, index_name, feature_id) DO UPDATE SET
			tau = excluded.tau,
			p_value = excluded.p_value,
			sen_slope = excluded.sen_slope,
			trend = excluded.trend,
			trend_category = excluded.trend_category,
			computed_at = excluded.computed_at
	`, stored, idx, featureID, r.Tau, r.PValue, r.SenSlope, r.Trend, r.Category, time.Now().UTC())
	return err
}

// GetTrendStat reads a persisted trend result. A miss returns (nil, nil);
// callers decide whether to compute cold.
func (s *Store) GetTrendStat(datasetKey, index, featureID string) (*trend.Result, error) {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return nil, err
	}
	idx, err := s.ValidateIndexName(datasetKey, index)
	if err != nil {
		return nil, err
	}

	var r trend.Result
	err = s.db.QueryRow(`
		SELECT tau, p_value, sen_slope, trend, trend_category
		FROM trend_stats
		WHERE dataset_key = ? AND index_name = ? AND feature_id = ?
	`, stored, idx, featureID).Scan(&r.Tau, &r.PValue, &r.SenSlope, &r.Trend, &r.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Labels are derived, not stored.
	r.Category, r.LabelEN, r.LabelFA, r.Symbol = trend.Classify(r.SenSlope, r.PValue, trend.DefaultAlpha)
	return &r, nil
}

// PrecomputeTrendStats computes and persists trends for every feature of
// one (dataset, index) pair, so the first user request is never
// latency-penalized by a cold computation. Returns the number of features
// processed.
func (s *Store) PrecomputeTrendStats(datasetKey, index string) (int, error) {
	all, err := s.FetchTrendStatsAll(datasetKey, index)
	if err != nil {
		return 0, err
	}
	for fid, r := range all {
		if err := s.UpsertTrendStats(datasetKey, index, fid, r); err != nil {
			return 0, fmt.Errorf("persist trend for %s: %w", fid, err)
		}
	}
	return len(all), nil
}
