// Package legacy serves user-supplied drought layers straight from files,
// with no store involved: data/user_data/<level>/ holds a geoinfo.geojson +
// data.csv pair per level. Bundles load once into memory on first use.
// Absent or unreadable files yield empty results, never errors; this is a
// fallback path, not a pipeline.
package legacy

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/hydrosense/droughtmap/internal/drought"
	"github.com/hydrosense/droughtmap/internal/importer"
	"github.com/hydrosense/droughtmap/internal/models"
)

// Levels the loader recognizes under the user_data directory.
var knownLevels = []string{"point", "polygon"}

type Loader struct {
	baseDir string

	mu      sync.Mutex
	bundles map[string]*bundle
}

type bundle struct {
	features []bundleFeature
	indexPos map[string]int
	indices  []string
	rows     map[string][]seriesRow
}

type bundleFeature struct {
	id   string
	name string
	geom json.RawMessage
}

type seriesRow struct {
	date   string
	values []*float64
}

// Region is one selectable feature of a legacy level.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewLoader serves bundles from baseDir (typically data/user_data).
func NewLoader(baseDir string) *Loader {
	return &Loader{
		baseDir: baseDir,
		bundles: make(map[string]*bundle),
	}
}

// Levels lists the levels that actually have a loadable bundle.
func (l *Loader) Levels() []string {
	var out []string
	for _, level := range knownLevels {
		if len(l.bundle(level).features) > 0 {
			out = append(out, level)
		}
	}
	return out
}

// ListRegions lists a level's features in id order.
func (l *Loader) ListRegions(level string) []Region {
	b := l.bundle(level)
	out := make([]Region, 0, len(b.features))
	for _, f := range b.features {
		out = append(out, Region{ID: f.id, Name: f.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Indices lists a level's available index columns.
func (l *Loader) Indices(level string) []string {
	return append([]string(nil), l.bundle(level).indices...)
}

// MapFeatures renders a level as a FeatureCollection for one index and
// month, mirroring the store-backed map payload.
func (l *Loader) MapFeatures(level, index, month string) *models.FeatureCollection {
	b := l.bundle(level)
	idx := strings.ToLower(strings.TrimSpace(index))
	pos, hasIndex := b.indexPos[idx]
	date := month + "-01"

	features := make([]models.GeoFeature, 0, len(b.features))
	for _, f := range b.features {
		var valPtr *float64
		if hasIndex {
			for _, row := range b.rows[f.id] {
				if row.date == date {
					valPtr = row.values[pos]
					break
				}
			}
		}
		features = append(features, models.GeoFeature{
			Type:     "Feature",
			Geometry: f.geom,
			Properties: map[string]any{
				"id":        f.id,
				"name":      f.name,
				"value":     valPtr,
				"has_value": valPtr != nil,
				"severity":  drought.ClassForIndex(idx, valPtr),
			},
		})
	}

	total := len(features)
	return &models.FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Meta: models.CollectionMeta{
			Total:    &total,
			Returned: total,
			Limit:    total,
		},
	}
}

// ExtractTimeseries returns one feature's series for an index, in date
// order with explicit nulls for recorded-but-empty months.
func (l *Loader) ExtractTimeseries(level, featureID, index string) []models.SeriesPoint {
	b := l.bundle(level)
	pos, ok := b.indexPos[strings.ToLower(strings.TrimSpace(index))]
	if !ok {
		return []models.SeriesPoint{}
	}
	rows := b.rows[featureID]
	out := make([]models.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.SeriesPoint{Date: row.date, Value: row.values[pos]})
	}
	return out
}

func (l *Loader) bundle(level string) *bundle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.bundles[level]; ok {
		return b
	}
	b := l.load(level)
	l.bundles[level] = b
	return b
}

func (l *Loader) load(level string) *bundle {
	b := &bundle{
		indexPos: make(map[string]int),
		rows:     make(map[string][]seriesRow),
	}
	if !validLevel(level) {
		return b
	}
	dir := filepath.Join(l.baseDir, level)
	l.loadGeometry(b, filepath.Join(dir, "geoinfo.geojson"))
	l.loadSeries(b, filepath.Join(dir, "data.csv"))
	return b
}

func validLevel(level string) bool {
	for _, known := range knownLevels {
		if level == known {
			return true
		}
	}
	return false
}

func (l *Loader) loadGeometry(b *bundle, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		log.Printf("legacy: parse %s: %v", path, err)
		return
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		id := firstProp(f.Properties, "id", "station_id", "region_id", "code", "name")
		if id == "" {
			continue
		}
		geomJSON, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			continue
		}
		name := firstProp(f.Properties, "name", "name_fa", "name_en", "title")
		if name == "" {
			name = id
		}
		b.features = append(b.features, bundleFeature{id: id, name: name, geom: geomJSON})
	}
}

func (l *Loader) loadSeries(b *bundle, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return
	}
	sch, err := importer.DetectSchema(importer.NormalizeHeader(header))
	if err != nil {
		log.Printf("legacy: %s: %v", path, err)
		return
	}
	b.indices = sch.IndexColumns()
	for i, name := range b.indices {
		b.indexPos[name] = i
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("legacy: read %s: %v", path, err)
			return
		}
		if !sch.Complete(record) {
			continue
		}
		id := sch.FeatureID(record)
		if id == "" {
			continue
		}
		date, err := sch.NormalizeDate(record)
		if err != nil {
			continue
		}
		b.rows[id] = append(b.rows[id], seriesRow{date: date, values: sch.Values(record)})
	}
	for id := range b.rows {
		rows := b.rows[id]
		sort.Slice(rows, func(i, j int) bool { return rows[i].date < rows[j].date })
	}
}

func firstProp(props geojson.Properties, keys ...string) string {
	lowered := make(map[string]any, len(props))
	for k, v := range props {
		lk := strings.ToLower(k)
		if _, exists := lowered[lk]; !exists {
			lowered[lk] = v
		}
	}
	for _, k := range keys {
		switch v := lowered[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
