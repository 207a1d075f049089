package importer

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hydrosense/droughtmap/internal/store"
)

const progressEvery = 50000

// ingestSeries streams a dataset's CSV into its series table through the
// store's chunked bulk writer. File and schema-level problems abort; rows
// with an empty id or an unparseable date are dropped and counted. Empty and
// non-numeric cells become nulls.
func ingestSeries(st *store.Store, key, path string, sch Schema, chunkSize int) (int64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Skip the header; the schema was detected from it already.
	if _, err := r.Read(); err != nil {
		return 0, 0, fmt.Errorf("read header of %s: %w", path, err)
	}

	w, err := st.NewSeriesWriter(key, sch.indexCols, chunkSize)
	if err != nil {
		return 0, 0, err
	}

	maxCol := sch.idCol
	for _, c := range sch.valueCols {
		if c > maxCol {
			maxCol = c
		}
	}
	for _, c := range []int{sch.dateCol, sch.yearCol, sch.monthCol} {
		if c > maxCol {
			maxCol = c
		}
	}

	var skipped int
	var lastLogged int64
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return w.Inserted(), skipped, fmt.Errorf("read %s line %d: %w", path, line+1, err)
		}
		line++

		if len(record) <= maxCol {
			skipped++
			continue
		}
		id := strings.TrimSpace(record[sch.idCol])
		if id == "" {
			skipped++
			continue
		}
		date, err := sch.NormalizeDate(record)
		if err != nil {
			skipped++
			continue
		}

		values := make([]sql.NullFloat64, len(sch.valueCols))
		for i, col := range sch.valueCols {
			cell := strings.TrimSpace(record[col])
			if cell == "" || strings.EqualFold(cell, "nan") || strings.EqualFold(cell, "null") {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			values[i] = sql.NullFloat64{Float64: v, Valid: true}
		}

		if err := w.Append(store.SeriesRow{FeatureID: id, Date: date, Values: values}); err != nil {
			return w.Inserted(), skipped, err
		}
		if n := w.Inserted(); n-lastLogged >= progressEvery {
			log.Printf("import %s: %d rows loaded", key, n)
			lastLogged = n
		}
	}

	if err := w.Close(); err != nil {
		return w.Inserted(), skipped, err
	}
	return w.Inserted(), skipped, nil
}
