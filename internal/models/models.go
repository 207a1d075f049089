package models

import (
	"database/sql"
	"encoding/json"
)

// Dataset is one imported spatial layer (stations, provinces, ...).
// MinDate/MaxDate hold YYYY-MM-01 bounds across the whole layer and are
// recomputed by the import pipeline.
type Dataset struct {
	Key      string
	Title    string
	GeomType string
	MinDate  sql.NullString
	MaxDate  sql.NullString
}

// DatasetInfo is the API-facing view of a dataset.
type DatasetInfo struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	GeomType string  `json:"geom_type"`
	MinMonth *string `json:"min_month"`
	MaxMonth *string `json:"max_month"`
}

// DatasetMeta is the richer metadata payload used for UI initialization.
type DatasetMeta struct {
	DatasetKey   string   `json:"dataset_key"`
	Title        string   `json:"title"`
	GeomType     string   `json:"geom_type"`
	FeatureCount int      `json:"feature_count"`
	Indices      []string `json:"indices"`
	MinMonth     *string  `json:"min_month"`
	MaxMonth     *string  `json:"max_month"`
}

// Feature is one spatial unit within a dataset. Geom holds the raw GeoJSON
// geometry; MinX..MaxY is its envelope, used for bounding-box filtering.
type Feature struct {
	DatasetKey string
	FeatureID  string
	Name       string
	Props      string
	Geom       string
	MinX       float64
	MinY       float64
	MaxX       float64
	MaxY       float64
	MinDate    sql.NullString
	MaxDate    sql.NullString
}

// GeoFeature is a single GeoJSON feature in an API response.
type GeoFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// CollectionMeta reports pagination state for a feature collection. Total is
// only populated on the first page, where the caller needs it to flag
// truncation.
type CollectionMeta struct {
	Total     *int `json:"total"`
	Returned  int  `json:"returned"`
	Limit     int  `json:"limit"`
	Offset    int  `json:"offset"`
	Truncated bool `json:"truncated"`
}

// FeatureCollection is the /mapdata response payload.
type FeatureCollection struct {
	Type     string         `json:"type"`
	Features []GeoFeature   `json:"features"`
	Meta     CollectionMeta `json:"meta"`
}

// SeriesPoint is one month in a continuous series. Value is nil for months
// inside the coverage window that have no data.
type SeriesPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Timeseries is the /timeseries response payload.
type Timeseries struct {
	Feature  string        `json:"feature"`
	MinMonth *string       `json:"min_month"`
	MaxMonth *string       `json:"max_month"`
	Data     []SeriesPoint `json:"data"`
}

// OverviewCounts buckets one month's index values by drought severity.
type OverviewCounts struct {
	Date      string `json:"date"`
	Index     string `json:"index"`
	WithValue int    `json:"with_value"`
	Missing   int    `json:"missing"`
	NormalWet int    `json:"Normal/Wet"`
	D0        int    `json:"D0"`
	D1        int    `json:"D1"`
	D2        int    `json:"D2"`
	D3        int    `json:"D3"`
	D4        int    `json:"D4"`
}
