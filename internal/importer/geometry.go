package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/hydrosense/droughtmap/internal/models"
	"github.com/hydrosense/droughtmap/internal/store"
)

// Display-name property candidates, checked case-insensitively.
var nameCandidates = []string{"name", "name_fa", "name_en", "title", "station_name"}

const featureBatchSize = 500

// ingestGeometry loads a dataset's GeoJSON into the features table. Each
// record's id comes from the prioritized property candidates, falling back
// to the GeoJSON feature id; records with neither are skipped and counted.
// The geometry itself is stored as raw GeoJSON with its envelope broken out
// for bbox filtering. Returns the upserted count, skipped count and the
// layer's geometry kind.
func ingestGeometry(st *store.Store, key, path string) (int, int, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, "", fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return 0, 0, "", fmt.Errorf("parse %s: %w", path, err)
	}

	var (
		batch    []models.Feature
		upserted int
		skipped  int
		geomType string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := st.UpsertFeatureBatch(batch); err != nil {
			return err
		}
		upserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, f := range fc.Features {
		if f.Geometry == nil {
			skipped++
			continue
		}
		id := featureIDFromProperties(f.Properties)
		if id == "" && f.ID != nil {
			id = strings.TrimSpace(fmt.Sprintf("%v", f.ID))
		}
		if id == "" {
			skipped++
			continue
		}
		if geomType == "" {
			geomType = f.Geometry.GeoJSONType()
		}

		geomJSON, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			skipped++
			continue
		}
		propsJSON, err := json.Marshal(f.Properties)
		if err != nil {
			propsJSON = []byte("{}")
		}

		bound := f.Geometry.Bound()
		batch = append(batch, models.Feature{
			DatasetKey: key,
			FeatureID:  id,
			Name:       featureName(f.Properties, id),
			Props:      string(propsJSON),
			Geom:       string(geomJSON),
			MinX:       bound.Min.X(),
			MinY:       bound.Min.Y(),
			MaxX:       bound.Max.X(),
			MaxY:       bound.Max.Y(),
		})
		if len(batch) >= featureBatchSize {
			if err := flush(); err != nil {
				return upserted, skipped, geomType, err
			}
		}
	}
	if err := flush(); err != nil {
		return upserted, skipped, geomType, err
	}
	return upserted, skipped, geomType, nil
}

// featureIDFromProperties searches the id candidates case-insensitively.
func featureIDFromProperties(props geojson.Properties) string {
	lowered := lowerKeys(props)
	for _, cand := range idColumnCandidates {
		if v, ok := lowered[cand]; ok {
			s := propString(v)
			if s != "" {
				return s
			}
		}
	}
	return ""
}

func featureName(props geojson.Properties, fallback string) string {
	lowered := lowerKeys(props)
	for _, cand := range nameCandidates {
		if v, ok := lowered[cand]; ok {
			if s := propString(v); s != "" {
				return s
			}
		}
	}
	return fallback
}

func lowerKeys(props geojson.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		lk := strings.ToLower(k)
		if _, exists := out[lk]; !exists {
			out[lk] = v
		}
	}
	return out
}

// propString renders a property value as an id-usable string. Whole-number
// floats print without the decimal point because GeoJSON numbers always
// decode as float64.
func propString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int:
		return fmt.Sprintf("%d", t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
