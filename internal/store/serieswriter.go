package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Column names that can never become index columns: they are either the
// table's own keys or date representations consumed during import.
var reservedSeriesColumns = map[string]bool{
	"feature_id": true,
	"station_id": true,
	"region_id":  true,
	"id":         true,
	"code":       true,
	"gid":        true,
	"fid":        true,
	"date":       true,
	"year":       true,
	"month":      true,
	"yyyymm":     true,
}

// ValidateSeriesColumns filters a source header down to the index columns
// that may appear in the series table: lower-cased, reserved names dropped,
// and every survivor checked against the identifier whitelist. This is the
// primary injection surface for dynamically built DDL, so an unsafe name is
// an error, never a silent skip.
func ValidateSeriesColumns(header []string) ([]string, error) {
	var cols []string
	seen := make(map[string]bool)
	for _, c := range header {
		cc := strings.ToLower(strings.TrimSpace(c))
		if cc == "" || reservedSeriesColumns[cc] || seen[cc] {
			continue
		}
		if !identifierRe.MatchString(cc) {
			return nil, fmt.Errorf("%w: unsafe column name in header: %q", ErrInvalidIdentifier, c)
		}
		seen[cc] = true
		cols = append(cols, cc)
	}
	return cols, nil
}

// CreateSeriesTable creates ts_<canonical key> with one REAL column per
// validated index name, keyed by (feature_id, date). Replace mode drops a
// pre-existing table first. Returns the validated column list in table
// order.
func (s *Store) CreateSeriesTable(datasetKey string, header []string, replace bool) ([]string, error) {
	table, err := tsTable(datasetKey)
	if err != nil {
		return nil, err
	}
	cols, err := ValidateSeriesColumns(header)
	if err != nil {
		return nil, err
	}

	if replace {
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return nil, fmt.Errorf("drop %s: %w", table, err)
		}
	}

	var defs strings.Builder
	for _, c := range cols {
		defs.WriteString(",\n    " + quoteIdent(c) + " REAL")
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		    feature_id TEXT NOT NULL,
		    date TEXT NOT NULL%s,
		    PRIMARY KEY (feature_id, date)
		)
	`, table, defs.String())
	if _, err := s.db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	if _, err := s.db.Exec(fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_date_feature ON %s (date, feature_id)`, table, table,
	)); err != nil {
		return nil, fmt.Errorf("index %s: %w", table, err)
	}

	s.InvalidateLookupCaches()
	return cols, nil
}

// SeriesRow is one month of one feature in the wide layout. Values align
// with the writer's column list.
type SeriesRow struct {
	FeatureID string
	Date      string
	Values    []sql.NullFloat64
}

// SeriesWriter is the bulk-load path for time-series rows: buffered
// multi-row upserts committed one chunk at a time, so a large import never
// runs in a single giant transaction and progress stays visible. Not safe
// for concurrent use; the import pipeline is a single writer.
type SeriesWriter struct {
	db        *sql.DB
	table     string
	cols      []string
	chunkSize int
	buf       []SeriesRow
	inserted  int64
}

// Rough cap on bind parameters per statement, comfortably under SQLite's
// limit.
const maxParamsPerStatement = 900

// NewSeriesWriter prepares a bulk writer for a dataset's series table. The
// column list is re-validated here even though CreateSeriesTable already
// checked it.
func (s *Store) NewSeriesWriter(datasetKey string, cols []string, chunkSize int) (*SeriesWriter, error) {
	table, err := tsTable(datasetKey)
	if err != nil {
		return nil, err
	}
	safe, err := ValidateSeriesColumns(cols)
	if err != nil {
		return nil, err
	}
	if len(safe) != len(cols) {
		return nil, fmt.Errorf("%w: series column list contains reserved names", ErrInvalidIdentifier)
	}
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	return &SeriesWriter{
		db:        s.db,
		table:     table,
		cols:      safe,
		chunkSize: chunkSize,
		buf:       make([]SeriesRow, 0, chunkSize),
	}, nil
}

// Append buffers one row, flushing a full chunk in its own transaction.
func (w *SeriesWriter) Append(row SeriesRow) error {
	if len(row.Values) != len(w.cols) {
		return fmt.Errorf("series row has %d values, want %d", len(row.Values), len(w.cols))
	}
	w.buf = append(w.buf, row)
	if len(w.buf) >= w.chunkSize {
		return w.Flush()
	}
	return nil
}

// Flush writes the buffered rows in one transaction, splitting into
// multiple statements to stay under the bind-parameter limit.
func (w *SeriesWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	rowsPerStmt := maxParamsPerStatement / (len(w.cols) + 2)
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	for start := 0; start < len(w.buf); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(w.buf) {
			end = len(w.buf)
		}
		if err := w.insertBatch(tx, w.buf[start:end]); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.inserted += int64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

func (w *SeriesWriter) insertBatch(tx *sql.Tx, rows []SeriesRow) error {
	quoted := make([]string, 0, len(w.cols))
	updates := make([]string, 0, len(w.cols))
	for _, c := range w.cols {
		q := quoteIdent(c)
		quoted = append(quoted, q)
		updates = append(updates, q+" = excluded."+q)
	}

	placeholder := "(?, ?" + strings.Repeat(", ?", len(w.cols)) + ")"
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*(len(w.cols)+2))
	for i, r := range rows {
		placeholders[i] = placeholder
		args = append(args, r.FeatureID, r.Date)
		for _, v := range r.Values {
			args = append(args, v)
		}
	}

	colList := "feature_id, date"
	updateClause := ""
	if len(quoted) > 0 {
		colList += ", " + strings.Join(quoted, ", ")
		updateClause = strings.Join(updates, ", ")
	} else {
		updateClause = "date = excluded.date"
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES %s
		ON CONFLICT(feature_id, date) DO UPDATE SET %s
	`, w.table, colList, strings.Join(placeholders, ", "), updateClause)

	_, err := tx.Exec(query, args...)
	return err
}

// Close flushes any remaining buffered rows.
func (w *SeriesWriter) Close() error {
	return w.Flush()
}

// Inserted reports the number of rows written so far.
func (w *SeriesWriter) Inserted() int64 {
	return w.inserted
}

// FinalizeBounds recomputes every feature's covered-month bounds from the
// freshly loaded series table and rolls them up to the dataset row. Bounds
// are derived data; they are rebuilt wholesale after each import rather
// than maintained incrementally.
func (s *Store) FinalizeBounds(datasetKey string) error {
	stored, err := s.ResolveDatasetKey(datasetKey)
	if err != nil {
		return err
	}
	table, err := tsTable(datasetKey)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(fmt.Sprintf(`
		UPDATE features SET
			min_date = (SELECT MIN(date) FROM %[1]s WHERE feature_id = features.feature_id),
			max_date = (SELECT MAX(date) FROM %[1]s WHERE feature_id = features.feature_id)
		WHERE dataset_key = ?
	`, table), stored); err != nil {
		return fmt.Errorf("finalize feature bounds: %w", err)
	}

	if _, err := s.db.Exec(fmt.Sprintf(`
		UPDATE datasets SET
			min_date = (SELECT MIN(date) FROM %[1]s),
			max_date = (SELECT MAX(date) FROM %[1]s)
		WHERE dataset_key = ?
	`, table), stored); err != nil {
		return fmt.Errorf("finalize dataset bounds: %w", err)
	}
	return nil
}
