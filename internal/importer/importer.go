// Package importer is the offline bulk-import pipeline. Each dataset runs
// through a fixed chain of steps: discover, register, create-schema,
// ingest-geometry, ingest-series, finalize-bounds, precompute-trends.
// Datasets are imported one at a time; the store has a single writer.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hydrosense/droughtmap/internal/metrics"
	"github.com/hydrosense/droughtmap/internal/store"
)

type Importer struct {
	Store     *store.Store
	DataDir   string
	Replace   bool
	ChunkSize int
}

// Result summarizes one dataset's import.
type Result struct {
	Dataset     string
	Features    int
	SkippedGeo  int
	Rows        int64
	SkippedRows int
	Indices     []string
	Trends      int
}

// Run imports every discovered dataset in key order, stopping at the first
// fatal failure.
func (imp *Importer) Run() ([]Result, error) {
	sources, err := Discover(imp.DataDir)
	if err != nil {
		return nil, abort("discover", err)
	}
	if len(sources) == 0 {
		return nil, abort("discover", fmt.Errorf("no importable datasets under %s", imp.DataDir))
	}

	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		res, err := imp.ImportDataset(src)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ImportDataset runs the full chain for one dataset. Any schema or
// file-level failure aborts with ErrImportAborted; row-level problems are
// counted and skipped inside the ingest steps.
func (imp *Importer) ImportDataset(src DatasetSource) (Result, error) {
	res := Result{Dataset: src.Key}
	log.Printf("import %s: starting (replace=%v)", src.Key, imp.Replace)

	if imp.Replace {
		if err := imp.Store.DropDatasetObjects(src.Key); err != nil {
			return res, abort("drop "+src.Key, err)
		}
	}

	if err := imp.Store.UpsertDataset(src.Key, src.Key, "Geometry"); err != nil {
		return res, abort("register "+src.Key, err)
	}

	header, err := readHeader(src.CSVPath)
	if err != nil {
		return res, abort("read header "+src.Key, err)
	}
	sch, err := DetectSchema(NormalizeHeader(header))
	if err != nil {
		return res, abort("detect schema "+src.Key, err)
	}
	cols, err := imp.Store.CreateSeriesTable(src.Key, sch.indexCols, imp.Replace)
	if err != nil {
		return res, abort("create schema "+src.Key, err)
	}
	res.Indices = cols

	features, skippedGeo, geomType, err := ingestGeometry(imp.Store, src.Key, src.GeoPath)
	if err != nil {
		return res, abort("ingest geometry "+src.Key, err)
	}
	res.Features = features
	res.SkippedGeo = skippedGeo
	if geomType != "" {
		if err := imp.Store.SetDatasetGeomType(src.Key, geomType); err != nil {
			return res, abort("set geometry kind "+src.Key, err)
		}
	}

	rows, skippedRows, err := ingestSeries(imp.Store, src.Key, src.CSVPath, sch, imp.ChunkSize)
	if err != nil {
		return res, abort("ingest series "+src.Key, err)
	}
	res.Rows = rows
	res.SkippedRows = skippedRows
	metrics.ImportRowsTotal.WithLabelValues(src.Key).Add(float64(rows))

	if err := imp.Store.FinalizeBounds(src.Key); err != nil {
		return res, abort("finalize bounds "+src.Key, err)
	}

	for _, idx := range cols {
		n, err := imp.Store.PrecomputeTrendStats(src.Key, idx)
		if err != nil {
			return res, abort("precompute trends "+src.Key+"/"+idx, err)
		}
		res.Trends += n
		metrics.TrendComputationsTotal.WithLabelValues("import").Add(float64(n))
	}

	if err := imp.Store.Analyze(); err != nil {
		return res, abort("analyze", err)
	}

	log.Printf("import %s: done, %d features (%d skipped), %d rows (%d skipped), %d trend stats",
		src.Key, res.Features, res.SkippedGeo, res.Rows, res.SkippedRows, res.Trends)
	return res, nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return header, err
}

func abort(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrImportAborted, step, err)
}
