package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hydrosense/droughtmap/internal/store"
)

// Feature identifier column candidates, in priority order. The same list
// drives GeoJSON property matching so the two files join on the same ids.
var idColumnCandidates = []string{
	"feature_id", "station_id", "region_id", "id", "code", "gid", "fid", "name",
}

type dateMode int

const (
	dateModeNone dateMode = iota
	dateModeDate          // a single date column
	dateModeYM            // separate year + month columns
	dateModeYYYYMM        // a 6-digit yyyymm code
)

// Schema is the interpretation of a series CSV header: which column holds
// the feature id, how the month is encoded, and which columns are index
// values.
type Schema struct {
	idCol     int
	mode      dateMode
	dateCol   int
	yearCol   int
	monthCol  int
	valueCols []int
	indexCols []string
}

// NormalizeHeader trims whitespace and a leading UTF-8 BOM and lower-cases
// every column name.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

// DetectSchema interprets a normalized header. The id column comes from the
// candidate list, falling back to the first column; the date representation
// must be one of the three supported encodings; everything else becomes an
// index column, validated against the identifier whitelist.
func DetectSchema(header []string) (Schema, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	sch := Schema{idCol: -1, dateCol: -1, yearCol: -1, monthCol: -1}
	for _, cand := range idColumnCandidates {
		if i, ok := pos[cand]; ok {
			sch.idCol = i
			break
		}
	}
	if sch.idCol == -1 {
		if len(header) == 0 {
			return sch, fmt.Errorf("empty header")
		}
		sch.idCol = 0
	}

	if i, ok := pos["date"]; ok {
		sch.mode = dateModeDate
		sch.dateCol = i
	} else if yi, yok := pos["year"]; yok {
		mi, mok := pos["month"]
		if !mok {
			return sch, fmt.Errorf("header has year but no month column")
		}
		sch.mode = dateModeYM
		sch.yearCol = yi
		sch.monthCol = mi
	} else if i, ok := pos["yyyymm"]; ok {
		sch.mode = dateModeYYYYMM
		sch.dateCol = i
	} else {
		return sch, fmt.Errorf("header has no date, year/month or yyyymm column")
	}

	seen := make(map[string]bool)
	for i, h := range header {
		if i == sch.idCol || i == sch.dateCol || i == sch.yearCol || i == sch.monthCol {
			continue
		}
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		sch.valueCols = append(sch.valueCols, i)
		sch.indexCols = append(sch.indexCols, h)
	}
	if len(sch.indexCols) == 0 {
		return sch, fmt.Errorf("header has no index columns")
	}
	if _, err := store.ValidateSeriesColumns(sch.indexCols); err != nil {
		return sch, err
	}
	return sch, nil
}

// IndexColumns returns the detected index column names in header order.
func (sch Schema) IndexColumns() []string {
	return append([]string(nil), sch.indexCols...)
}

// Complete reports whether a record is long enough to carry every detected
// column.
func (sch Schema) Complete(record []string) bool {
	max := sch.idCol
	for _, c := range []int{sch.dateCol, sch.yearCol, sch.monthCol} {
		if c > max {
			max = c
		}
	}
	for _, c := range sch.valueCols {
		if c > max {
			max = c
		}
	}
	return len(record) > max
}

// FeatureID returns the trimmed feature id cell of one record.
func (sch Schema) FeatureID(record []string) string {
	return strings.TrimSpace(record[sch.idCol])
}

// Values parses the index cells of one record in IndexColumns order. Empty
// and non-numeric cells come back nil.
func (sch Schema) Values(record []string) []*float64 {
	out := make([]*float64, len(sch.valueCols))
	for i, col := range sch.valueCols {
		cell := strings.TrimSpace(record[col])
		if cell == "" || strings.EqualFold(cell, "nan") || strings.EqualFold(cell, "null") {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		out[i] = &v
	}
	return out
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006/01/02", "2006/01"}

// NormalizeDate converts one record's date fields into canonical YYYY-MM-01
// text.
func (sch Schema) NormalizeDate(record []string) (string, error) {
	switch sch.mode {
	case dateModeDate:
		raw := strings.TrimSpace(record[sch.dateCol])
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), nil
			}
		}
		return "", fmt.Errorf("unparseable date %q", raw)
	case dateModeYM:
		y, err := strconv.Atoi(strings.TrimSpace(record[sch.yearCol]))
		if err != nil {
			return "", fmt.Errorf("bad year %q", record[sch.yearCol])
		}
		m, err := strconv.Atoi(strings.TrimSpace(record[sch.monthCol]))
		if err != nil || m < 1 || m > 12 {
			return "", fmt.Errorf("bad month %q", record[sch.monthCol])
		}
		return fmt.Sprintf("%04d-%02d-01", y, m), nil
	case dateModeYYYYMM:
		raw := strings.TrimSpace(record[sch.dateCol])
		if len(raw) != 6 {
			return "", fmt.Errorf("bad yyyymm code %q", raw)
		}
		y, err := strconv.Atoi(raw[:4])
		if err != nil {
			return "", fmt.Errorf("bad yyyymm code %q", raw)
		}
		m, err := strconv.Atoi(raw[4:])
		if err != nil || m < 1 || m > 12 {
			return "", fmt.Errorf("bad yyyymm code %q", raw)
		}
		return fmt.Sprintf("%04d-%02d-01", y, m), nil
	}
	return "", fmt.Errorf("no date mode")
}
