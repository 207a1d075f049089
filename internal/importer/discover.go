package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hydrosense/droughtmap/internal/store"
)

const (
	seriesFileName = "data.csv"
	geoFileName    = "geoinfo.geojson"

	// Dataset key assumed for a bare top-level file pair.
	defaultDatasetKey = "station"
)

// DatasetSource is one discovered importable dataset: a CSV of monthly index
// values plus the GeoJSON describing its features.
type DatasetSource struct {
	Key     string
	CSVPath string
	GeoPath string
}

// Discover scans a data directory for importable datasets. Each
// subdirectory holding both data.csv and geoinfo.geojson becomes a dataset
// named after the folder; a bare pair directly in the root imports as the
// default "station" dataset. Folder names must be valid dataset keys.
func Discover(dataDir string) ([]DatasetSource, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dataDir, err)
	}

	var sources []DatasetSource
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		csvPath := filepath.Join(dataDir, e.Name(), seriesFileName)
		geoPath := filepath.Join(dataDir, e.Name(), geoFileName)
		if !fileExists(csvPath) || !fileExists(geoPath) {
			continue
		}
		key, err := store.ValidateKey(e.Name())
		if err != nil {
			return nil, fmt.Errorf("dataset folder %q: %w", e.Name(), err)
		}
		sources = append(sources, DatasetSource{Key: key, CSVPath: csvPath, GeoPath: geoPath})
	}

	rootCSV := filepath.Join(dataDir, seriesFileName)
	rootGeo := filepath.Join(dataDir, geoFileName)
	if fileExists(rootCSV) && fileExists(rootGeo) {
		sources = append(sources, DatasetSource{Key: defaultDatasetKey, CSVPath: rootCSV, GeoPath: rootGeo})
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Key < sources[j].Key })
	return sources, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
