package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Dataset keys and index names end up inside dynamically built table and
// column references. Everything that touches SQL text goes through this
// whitelist; parameter binding cannot protect identifiers.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateKey checks a raw dataset key against the identifier whitelist and
// returns it trimmed with its original case preserved.
func ValidateKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" || !identifierRe.MatchString(key) {
		return "", fmt.Errorf("%w: dataset key %q (use letters/numbers/underscore)", ErrInvalidIdentifier, raw)
	}
	return key, nil
}

// CanonicalKey is the lower-cased validated key used for all derived object
// names. The series table name folds case regardless of how the logical key
// is stored, so ts_<key> is always built from this form.
func CanonicalKey(raw string) (string, error) {
	key, err := ValidateKey(raw)
	if err != nil {
		return "", err
	}
	return strings.ToLower(key), nil
}

// ResolveDatasetKey maps an incoming key to the stored datasets.dataset_key,
// matching case-insensitively so the UI can send "Station" for a layer
// registered as "station". Resolutions are cached per process.
func (s *Store) ResolveDatasetKey(raw string) (string, error) {
	canon, err := CanonicalKey(raw)
	if err != nil {
		return "", err
	}
	if stored, ok := s.cachedKey(canon); ok {
		return stored, nil
	}

	var stored string
	err = s.db.QueryRow(
		`SELECT dataset_key FROM datasets WHERE lower(dataset_key) = ? LIMIT 1`, canon,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrNotFound, raw)
	}
	if err != nil {
		return "", fmt.Errorf("resolve dataset key: %w", err)
	}

	s.storeKey(canon, stored)
	return stored, nil
}

// tsTable builds the series table name for a dataset. The key is
// re-validated here even when callers already did, so no refactor can
// reintroduce an unchecked path into SQL text.
func tsTable(datasetKey string) (string, error) {
	canon, err := CanonicalKey(datasetKey)
	if err != nil {
		return "", err
	}
	return "ts_" + canon, nil
}

// AvailableIndices lists the index columns of a dataset's series table,
// read from the table schema and cached per dataset. A registered dataset
// whose series table is missing has never been imported.
func (s *Store) AvailableIndices(datasetKey string) ([]string, error) {
	canon, err := CanonicalKey(datasetKey)
	if err != nil {
		return nil, err
	}
	if cols, ok := s.cachedIndices(canon); ok {
		return cols, nil
	}
	if _, err := s.ResolveDatasetKey(canon); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('ts_` + canon + `') ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("inspect ts_%s: %w", canon, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name == "feature_id" || name == "date" {
			continue
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		// pragma_table_info returns nothing for a missing table.
		return nil, fmt.Errorf("%w: ts_%s does not exist", ErrNotImported, canon)
	}

	s.storeIndices(canon, cols)
	return cols, nil
}

// ValidateIndexName is the single choke point through which a user-supplied
// index name may reach SQL text. It lower-cases the name and requires it to
// be a real column of the dataset's series table.
func (s *Store) ValidateIndexName(datasetKey, index string) (string, error) {
	idx := strings.ToLower(strings.TrimSpace(index))
	if idx == "" || !identifierRe.MatchString(idx) {
		return "", fmt.Errorf("%w: index %q", ErrInvalidIdentifier, index)
	}
	cols, err := s.AvailableIndices(datasetKey)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if c == idx {
			return idx, nil
		}
	}
	return "", &UnknownIndexError{Index: index, Available: cols}
}

// quoteIdent wraps an already-validated identifier for interpolation,
// stripping any quote characters as a last line of defense.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}
