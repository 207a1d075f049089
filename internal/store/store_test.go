package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hydrosense/droughtmap/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

// seedDataset registers a dataset with a spi3 series table and three
// features on a small grid.
func seedDataset(t *testing.T, st *Store, key string) {
	t.Helper()
	if err := st.UpsertDataset(key, key, "Point"); err != nil {
		t.Fatalf("UpsertDataset: %v", err)
	}
	if _, err := st.CreateSeriesTable(key, []string{"feature_id", "date", "spi3", "spi12"}, false); err != nil {
		t.Fatalf("CreateSeriesTable: %v", err)
	}
	features := []models.Feature{
		{DatasetKey: key, FeatureID: "F1", Name: "Alpha", Props: `{"Province":"Fars"}`, Geom: `{"type":"Point","coordinates":[52.5,29.6]}`, MinX: 52.5, MinY: 29.6, MaxX: 52.5, MaxY: 29.6},
		{DatasetKey: key, FeatureID: "F2", Name: "Beta", Props: `{}`, Geom: `{"type":"Point","coordinates":[51.4,35.7]}`, MinX: 51.4, MinY: 35.7, MaxX: 51.4, MaxY: 35.7},
		{DatasetKey: key, FeatureID: "F3", Name: "Gamma", Props: `{}`, Geom: `{"type":"Point","coordinates":[59.6,36.3]}`, MinX: 59.6, MinY: 36.3, MaxX: 59.6, MaxY: 36.3},
	}
	if err := st.UpsertFeatureBatch(features); err != nil {
		t.Fatalf("UpsertFeatureBatch: %v", err)
	}
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

var nullF = sql.NullFloat64{}

func writeRows(t *testing.T, st *Store, key string, rows []SeriesRow) {
	t.Helper()
	w, err := st.NewSeriesWriter(key, []string{"spi3", "spi12"}, 2)
	if err != nil {
		t.Fatalf("NewSeriesWriter: %v", err)
	}
	for _, r := range rows {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	if _, err := ValidateKey("Station_1"); err != nil {
		t.Errorf("ValidateKey(Station_1): %v", err)
	}
	for _, bad := range []string{"", "  ", "a-b", "a b", "a;drop", `ts";--`} {
		if _, err := ValidateKey(bad); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ValidateKey(%q) err = %v, want ErrInvalidIdentifier", bad, err)
		}
	}
	canon, err := CanonicalKey("  Station ")
	if err != nil || canon != "station" {
		t.Errorf("CanonicalKey(Station) = %q, %v", canon, err)
	}
}

func TestResolveDatasetKey_CaseInsensitive(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "Station")

	upper, err := st.ResolveDatasetKey("Station")
	if err != nil {
		t.Fatalf("ResolveDatasetKey(Station): %v", err)
	}
	lower, err := st.ResolveDatasetKey("station")
	if err != nil {
		t.Fatalf("ResolveDatasetKey(station): %v", err)
	}
	if upper != lower || upper != "Station" {
		t.Errorf("resolved keys differ: %q vs %q, want stored key Station", upper, lower)
	}

	if _, err := st.ResolveDatasetKey("county"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveDatasetKey(county) err = %v, want ErrNotFound", err)
	}
}

func TestValidateIndexName(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")

	idx, err := st.ValidateIndexName("Station", "SPI3")
	if err != nil {
		t.Fatalf("ValidateIndexName: %v", err)
	}
	if idx != "spi3" {
		t.Errorf("idx = %q, want spi3", idx)
	}

	_, err = st.ValidateIndexName("station", "spei6")
	var unknown *UnknownIndexError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownIndexError", err)
	}
	if len(unknown.Available) != 2 {
		t.Errorf("Available = %v, want [spi12 spi3]", unknown.Available)
	}

	if _, err := st.ValidateIndexName("station", "spi3; DROP TABLE features"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("injection attempt err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestAvailableIndices_NotImported(t *testing.T) {
	st := setupTestStore(t)
	if err := st.UpsertDataset("province", "province", "Polygon"); err != nil {
		t.Fatalf("UpsertDataset: %v", err)
	}
	// Registered but the series table was never created.
	if _, err := st.AvailableIndices("province"); !errors.Is(err, ErrNotImported) {
		t.Errorf("AvailableIndices err = %v, want ErrNotImported", err)
	}
}

func TestValidateSeriesColumns(t *testing.T) {
	cols, err := ValidateSeriesColumns([]string{"station_id", "Year", "Month", "SPI3", "SPEI12", "spi3"})
	if err != nil {
		t.Fatalf("ValidateSeriesColumns: %v", err)
	}
	if len(cols) != 2 || cols[0] != "spi3" || cols[1] != "spei12" {
		t.Errorf("cols = %v, want [spi3 spei12]", cols)
	}

	if _, err := ValidateSeriesColumns([]string{"spi3", `evil"); DROP TABLE datasets;--`}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("unsafe header err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestSeriesTableName(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "Station")

	// The series table name always folds case: ts_<lowercase key>.
	var n int
	err := st.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='ts_station'`).Scan(&n)
	if err != nil || n != 1 {
		t.Fatalf("ts_station table missing (n=%d, err=%v)", n, err)
	}
}

func TestFetchFeatures(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-1.2), nf(0.3)}},
		{FeatureID: "F2", Date: "2016-02-01", Values: []sql.NullFloat64{nf(0.5), nullF}},
	})

	fc, err := st.FetchFeatures("station", "spi3", "2016-02", "", 10, 0)
	if err != nil {
		t.Fatalf("FetchFeatures: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("Type = %q", fc.Type)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("len(features) = %d, want 3 (outer join keeps valueless features)", len(fc.Features))
	}
	if fc.Meta.Total == nil || *fc.Meta.Total != 3 {
		t.Errorf("Meta.Total = %v, want 3 on first page", fc.Meta.Total)
	}
	if fc.Meta.Truncated {
		t.Error("Meta.Truncated = true, want false")
	}

	byID := map[string]map[string]any{}
	for _, f := range fc.Features {
		byID[f.Properties["id"].(string)] = f.Properties
	}
	if v := byID["F1"]["value"].(*float64); v == nil || *v != -1.2 {
		t.Errorf("F1 value = %v, want -1.2", v)
	}
	if sev := byID["F1"]["severity"]; sev != "D1" {
		t.Errorf("F1 severity = %v, want D1", sev)
	}
	if prov := byID["F1"]["province"]; prov != "Fars" {
		t.Errorf("F1 province = %v, want Fars", prov)
	}
	if hv := byID["F3"]["has_value"]; hv != false {
		t.Errorf("F3 has_value = %v, want false", hv)
	}
	if v := byID["F3"]["value"].(*float64); v != nil {
		t.Errorf("F3 value = %v, want nil", v)
	}
}

func TestFetchFeatures_BBoxAndPagination(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")

	// Inverted box around Tehran (F2 only), normalized internally.
	fc, err := st.FetchFeatures("station", "spi3", "2016-02", "52,36,50,35", 10, 0)
	if err != nil {
		t.Fatalf("FetchFeatures bbox: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["id"] != "F2" {
		t.Fatalf("bbox filter returned %d features, want just F2", len(fc.Features))
	}

	// Deep pagination omits the total count.
	fc, err = st.FetchFeatures("station", "spi3", "2016-02", "", 2, 2)
	if err != nil {
		t.Fatalf("FetchFeatures page 2: %v", err)
	}
	if fc.Meta.Total != nil {
		t.Errorf("Meta.Total = %v, want nil when offset > 0", *fc.Meta.Total)
	}
	if fc.Meta.Returned != 1 {
		t.Errorf("Returned = %d, want 1", fc.Meta.Returned)
	}

	// First page of two flags truncation.
	fc, err = st.FetchFeatures("station", "spi3", "2016-02", "", 2, 0)
	if err != nil {
		t.Fatalf("FetchFeatures page 1: %v", err)
	}
	if !fc.Meta.Truncated {
		t.Error("Meta.Truncated = false, want true with limit 2 of 3")
	}
}

func TestFetchOverviewCounts(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nf(0.4), nullF}},
		{FeatureID: "F2", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-0.8), nullF}},
		{FeatureID: "F3", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-0.801), nullF}},
		{FeatureID: "F1", Date: "2016-03-01", Values: []sql.NullFloat64{nullF, nullF}},
	})

	out, err := st.FetchOverviewCounts("station", "spi3", "2016-02")
	if err != nil {
		t.Fatalf("FetchOverviewCounts: %v", err)
	}
	if out.WithValue != 3 || out.Missing != 0 {
		t.Errorf("with_value=%d missing=%d, want 3/0", out.WithValue, out.Missing)
	}
	if out.NormalWet != 1 {
		t.Errorf("NormalWet = %d, want 1", out.NormalWet)
	}
	// Exactly -0.8 is D0; -0.801 falls into D1.
	if out.D0 != 1 || out.D1 != 1 {
		t.Errorf("D0=%d D1=%d, want 1/1", out.D0, out.D1)
	}

	out, err = st.FetchOverviewCounts("station", "spi3", "2016-03")
	if err != nil {
		t.Fatalf("FetchOverviewCounts 2016-03: %v", err)
	}
	if out.WithValue != 0 || out.Missing != 1 {
		t.Errorf("2016-03 with_value=%d missing=%d, want 0/1", out.WithValue, out.Missing)
	}
}

func TestFetchTimeseriesFull_ContinuousWithGaps(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	// Covered months Jan..Mar 2016, spi3 present only in Feb.
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-01-01", Values: []sql.NullFloat64{nullF, nf(0.1)}},
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-1.2), nf(0.2)}},
		{FeatureID: "F1", Date: "2016-03-01", Values: []sql.NullFloat64{nullF, nf(0.3)}},
	})

	ts, err := st.FetchTimeseriesFull("station", "F1", "spi3")
	if err != nil {
		t.Fatalf("FetchTimeseriesFull: %v", err)
	}
	if ts.Feature != "Alpha" {
		t.Errorf("Feature = %q, want Alpha", ts.Feature)
	}
	if ts.MinMonth == nil || *ts.MinMonth != "2016-01" || ts.MaxMonth == nil || *ts.MaxMonth != "2016-03" {
		t.Fatalf("bounds = %v..%v, want 2016-01..2016-03", ts.MinMonth, ts.MaxMonth)
	}
	if len(ts.Data) != 3 {
		t.Fatalf("len(data) = %d, want exactly one entry per month", len(ts.Data))
	}
	if ts.Data[0].Date != "2016-01-01" || ts.Data[0].Value != nil {
		t.Errorf("data[0] = %+v, want 2016-01-01/null", ts.Data[0])
	}
	if ts.Data[1].Value == nil || *ts.Data[1].Value != -1.2 {
		t.Errorf("data[1].Value = %v, want -1.2", ts.Data[1].Value)
	}
	if ts.Data[2].Date != "2016-03-01" || ts.Data[2].Value != nil {
		t.Errorf("data[2] = %+v, want 2016-03-01/null", ts.Data[2])
	}
}

func TestFetchTimeseriesFull_SpansGapMonthsWithoutRows(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2015-11-01", Values: []sql.NullFloat64{nf(0.5), nullF}},
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-0.4), nullF}},
	})

	ts, err := st.FetchTimeseriesFull("station", "F1", "spi3")
	if err != nil {
		t.Fatalf("FetchTimeseriesFull: %v", err)
	}
	if len(ts.Data) != 4 {
		t.Fatalf("len(data) = %d, want 4 (Nov, Dec, Jan, Feb)", len(ts.Data))
	}
	if ts.Data[1].Date != "2015-12-01" || ts.Data[1].Value != nil {
		t.Errorf("data[1] = %+v, want 2015-12-01/null", ts.Data[1])
	}
	if ts.Data[2].Date != "2016-01-01" || ts.Data[2].Value != nil {
		t.Errorf("data[2] = %+v, want 2016-01-01/null", ts.Data[2])
	}
}

func TestFetchTimeseriesFull_NoCoverage(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")

	ts, err := st.FetchTimeseriesFull("station", "F1", "spi3")
	if err != nil {
		t.Fatalf("FetchTimeseriesFull: %v", err)
	}
	if ts.MinMonth != nil || ts.MaxMonth != nil || len(ts.Data) != 0 {
		t.Errorf("want empty series with null bounds, got %+v", ts)
	}
}

func mustMonth(t *testing.T, s string) time.Time {
	t.Helper()
	m, err := ParseYYYYMM(s)
	if err != nil {
		t.Fatalf("ParseYYYYMM(%s): %v", s, err)
	}
	return m
}

func TestResolveEffectiveMonth(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-01-01", Values: []sql.NullFloat64{nullF, nullF}},
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nf(-1.2), nullF}},
		{FeatureID: "F1", Date: "2016-03-01", Values: []sql.NullFloat64{nullF, nullF}},
	})

	// Exact hit: idempotent, empty note.
	eff, val, note, err := st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2016-02"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if dateText(eff) != "2016-02-01" || val == nil || *val != -1.2 || note != "" {
		t.Errorf("exact hit = (%s, %v, %q), want (2016-02-01, -1.2, \"\")", dateText(eff), val, note)
	}

	// In-window gap month falls through to the nearest later value.
	eff, val, note, err = st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2016-01"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if dateText(eff) != "2016-02-01" || val == nil || *val != -1.2 || note != "nearest-next" {
		t.Errorf("gap month = (%s, %v, %q), want (2016-02-01, -1.2, nearest-next)", dateText(eff), val, note)
	}

	// Gap month after the value resolves to the nearest earlier one.
	eff, val, note, err = st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2016-03"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if dateText(eff) != "2016-02-01" || note != "nearest-previous" {
		t.Errorf("trailing gap = (%s, %q), want (2016-02-01, nearest-previous)", dateText(eff), note)
	}

	// Before the window: clamp, then the clamped month is itself null, so
	// the chain continues and the notes compose.
	eff, val, note, err = st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2015-06"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if dateText(eff) != "2016-02-01" || note != "clamped-to-start;nearest-next" {
		t.Errorf("clamped = (%s, %q), want (2016-02-01, clamped-to-start;nearest-next)", dateText(eff), note)
	}
	if val == nil || *val != -1.2 {
		t.Errorf("clamped value = %v, want -1.2", val)
	}

	// After the window.
	eff, _, note, err = st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2020-01"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if dateText(eff) != "2016-02-01" || note != "clamped-to-end;nearest-previous" {
		t.Errorf("clamped end = (%s, %q), want (2016-02-01, clamped-to-end;nearest-previous)", dateText(eff), note)
	}
}

func TestResolveEffectiveMonth_ClampedStillNull(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	// Rows exist but the index is null everywhere: every step of the chain
	// fails and the notes still compose.
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-01-01", Values: []sql.NullFloat64{nullF, nf(1.0)}},
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nullF, nf(1.1)}},
	})

	eff, val, note, err := st.ResolveEffectiveMonth("station", "F1", "spi3", mustMonth(t, "2015-01"))
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if val != nil {
		t.Errorf("val = %v, want nil", val)
	}
	if note != "clamped-to-start;no-value" {
		t.Errorf("note = %q, want clamped-to-start;no-value", note)
	}
	if dateText(eff) != "2016-01-01" {
		t.Errorf("eff = %s, want the clamped bound", dateText(eff))
	}
}

func TestResolveEffectiveMonth_NoData(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")

	requested := mustMonth(t, "2016-01")
	eff, val, note, err := st.ResolveEffectiveMonth("station", "F1", "spi3", requested)
	if err != nil {
		t.Fatalf("ResolveEffectiveMonth: %v", err)
	}
	if !eff.Equal(requested) || val != nil || note != "no-data" {
		t.Errorf("= (%s, %v, %q), want (requested, nil, no-data)", dateText(eff), val, note)
	}
}

func TestFetchValuesUpTo(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-01-01", Values: []sql.NullFloat64{nf(0.1), nullF}},
		{FeatureID: "F1", Date: "2016-02-01", Values: []sql.NullFloat64{nullF, nullF}},
		{FeatureID: "F1", Date: "2016-03-01", Values: []sql.NullFloat64{nf(0.3), nullF}},
		{FeatureID: "F1", Date: "2016-04-01", Values: []sql.NullFloat64{nf(0.4), nullF}},
	})

	all, err := st.FetchValuesUpTo("station", "F1", "spi3", nil)
	if err != nil {
		t.Fatalf("FetchValuesUpTo: %v", err)
	}
	if len(all) != 3 || all[0] != 0.1 || all[1] != 0.3 || all[2] != 0.4 {
		t.Errorf("all = %v, want [0.1 0.3 0.4] in date order", all)
	}

	end := mustMonth(t, "2016-03")
	windowed, err := st.FetchValuesUpTo("station", "F1", "spi3", &end)
	if err != nil {
		t.Fatalf("FetchValuesUpTo windowed: %v", err)
	}
	if len(windowed) != 2 || windowed[1] != 0.3 {
		t.Errorf("windowed = %v, want [0.1 0.3]", windowed)
	}
}

func TestTrendStatsRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")

	rows := make([]SeriesRow, 0, 24)
	for i := 0; i < 24; i++ {
		d := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		rows = append(rows, SeriesRow{
			FeatureID: "F1",
			Date:      d.Format("2006-01-02"),
			Values:    []sql.NullFloat64{nf(float64(i) * 0.05), nullF},
		})
	}
	// F2 has a flat series.
	for i := 0; i < 6; i++ {
		d := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		rows = append(rows, SeriesRow{
			FeatureID: "F2",
			Date:      d.Format("2006-01-02"),
			Values:    []sql.NullFloat64{nf(0.2), nullF},
		})
	}
	writeRows(t, st, "station", rows)

	all, err := st.FetchTrendStatsAll("station", "spi3")
	if err != nil {
		t.Fatalf("FetchTrendStatsAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all["F1"].Category != "inc" {
		t.Errorf("F1 category = %q, want inc", all["F1"].Category)
	}
	if all["F2"].Category != "none" {
		t.Errorf("F2 category = %q, want none", all["F2"].Category)
	}

	n, err := st.PrecomputeTrendStats("station", "spi3")
	if err != nil {
		t.Fatalf("PrecomputeTrendStats: %v", err)
	}
	if n != 2 {
		t.Errorf("precomputed %d, want 2", n)
	}

	r, err := st.GetTrendStat("station", "spi3", "F1")
	if err != nil {
		t.Fatalf("GetTrendStat: %v", err)
	}
	if r == nil || r.Category != "inc" || r.Symbol != "↑" {
		t.Errorf("persisted trend = %+v, want inc/↑", r)
	}

	missing, err := st.GetTrendStat("station", "spi3", "F3")
	if err != nil {
		t.Fatalf("GetTrendStat F3: %v", err)
	}
	if missing != nil {
		t.Errorf("GetTrendStat F3 = %+v, want nil for a feature without rows", missing)
	}
}

func TestFinalizeBounds(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2015-06-01", Values: []sql.NullFloat64{nf(0.1), nullF}},
		{FeatureID: "F1", Date: "2016-03-01", Values: []sql.NullFloat64{nf(0.2), nullF}},
		{FeatureID: "F2", Date: "2016-01-01", Values: []sql.NullFloat64{nf(0.3), nullF}},
	})

	if err := st.FinalizeBounds("station"); err != nil {
		t.Fatalf("FinalizeBounds: %v", err)
	}

	meta, err := st.FetchMeta("station")
	if err != nil {
		t.Fatalf("FetchMeta: %v", err)
	}
	if meta.MinMonth == nil || *meta.MinMonth != "2015-06" {
		t.Errorf("dataset MinMonth = %v, want 2015-06", meta.MinMonth)
	}
	if meta.MaxMonth == nil || *meta.MaxMonth != "2016-03" {
		t.Errorf("dataset MaxMonth = %v, want 2016-03", meta.MaxMonth)
	}
	if meta.FeatureCount != 3 {
		t.Errorf("FeatureCount = %d, want 3", meta.FeatureCount)
	}

	var minD, maxD sql.NullString
	if err := st.db.QueryRow(`SELECT min_date, max_date FROM features WHERE dataset_key='station' AND feature_id='F1'`).Scan(&minD, &maxD); err != nil {
		t.Fatalf("read F1 bounds: %v", err)
	}
	if minD.String != "2015-06-01" || maxD.String != "2016-03-01" {
		t.Errorf("F1 bounds = %s..%s, want 2015-06-01..2016-03-01", minD.String, maxD.String)
	}
}

func TestDropDatasetObjects(t *testing.T) {
	st := setupTestStore(t)
	seedDataset(t, st, "station")
	writeRows(t, st, "station", []SeriesRow{
		{FeatureID: "F1", Date: "2016-01-01", Values: []sql.NullFloat64{nf(0.1), nullF}},
	})
	if _, err := st.PrecomputeTrendStats("station", "spi3"); err != nil {
		t.Fatalf("PrecomputeTrendStats: %v", err)
	}

	if err := st.DropDatasetObjects("STATION"); err != nil {
		t.Fatalf("DropDatasetObjects: %v", err)
	}

	if _, err := st.ResolveDatasetKey("station"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after drop, ResolveDatasetKey err = %v, want ErrNotFound", err)
	}
	var n int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='ts_station'`).Scan(&n); err != nil || n != 0 {
		t.Errorf("ts_station still present (n=%d, err=%v)", n, err)
	}
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM features WHERE dataset_key='station'`).Scan(&n); err != nil || n != 0 {
		t.Errorf("features remain after drop (n=%d)", n)
	}
}

func TestParseBBox(t *testing.T) {
	b := ParseBBox("10, 20, 5, 15")
	if b == nil || b.MinX != 5 || b.MaxX != 10 || b.MinY != 15 || b.MaxY != 20 {
		t.Errorf("ParseBBox normalized = %+v", b)
	}
	for _, bad := range []string{"", "1,2,3", "a,b,c,d"} {
		if ParseBBox(bad) != nil {
			t.Errorf("ParseBBox(%q) != nil", bad)
		}
	}
}

func TestParseYYYYMM(t *testing.T) {
	m, err := ParseYYYYMM("2016-02")
	if err != nil || dateText(m) != "2016-02-01" {
		t.Errorf("ParseYYYYMM(2016-02) = %v, %v", m, err)
	}
	for _, bad := range []string{"2016", "2016-13", "2016-00", "x-y", "2016-02-01"} {
		if _, err := ParseYYYYMM(bad); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ParseYYYYMM(%q) err = %v, want ErrInvalidIdentifier", bad, err)
		}
	}
}
