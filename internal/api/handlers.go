package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hydrosense/droughtmap/internal/cache"
	"github.com/hydrosense/droughtmap/internal/drought"
	"github.com/hydrosense/droughtmap/internal/metrics"
	"github.com/hydrosense/droughtmap/internal/models"
	"github.com/hydrosense/droughtmap/internal/store"
	"github.com/hydrosense/droughtmap/internal/trend"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListDatasets()
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []models.DatasetInfo{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	key := cache.Key("meta", dataset, "", "", "", 0, 0)
	out, err := cache.GetOrCompute(r.Context(), s.cache, key, s.ttl, func() (*models.DatasetMeta, error) {
		return s.store.FetchMeta(dataset)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMapData(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	q := r.URL.Query()
	index := q.Get("index")
	date := q.Get("date")
	bbox := q.Get("bbox")
	limit := intParam(q.Get("limit"), 0)
	offset := intParam(q.Get("offset"), 0)

	key := cache.Key("mapdata", dataset, index, date, bbox, limit, offset)
	out, err := cache.GetOrCompute(r.Context(), s.cache, key, s.ttl, func() (*models.FeatureCollection, error) {
		return s.store.FetchFeatures(dataset, index, date, bbox, limit, offset)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	q := r.URL.Query()
	index := q.Get("index")
	date := q.Get("date")

	key := cache.Key("overview", dataset, index, date, "", 0, 0)
	out, err := cache.GetOrCompute(r.Context(), s.cache, key, s.ttl, func() (*models.OverviewCounts, error) {
		return s.store.FetchOverviewCounts(dataset, index, date)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	feature := chi.URLParam(r, "feature")
	index := r.URL.Query().Get("index")

	key := cache.Key("timeseries", dataset, index+":"+feature, "", "", 0, 0)
	out, err := cache.GetOrCompute(r.Context(), s.cache, key, s.ttl, func() (*models.Timeseries, error) {
		return s.store.FetchTimeseriesFull(dataset, feature, index)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// kpiResponse is the per-feature summary panel payload.
type kpiResponse struct {
	Feature        string        `json:"feature"`
	RequestedMonth string        `json:"requested_month"`
	EffectiveMonth string        `json:"effective_month"`
	Note           string        `json:"note"`
	Min            *float64      `json:"min"`
	Max            *float64      `json:"max"`
	Mean           *float64      `json:"mean"`
	Latest         *float64      `json:"latest"`
	Severity       string        `json:"severity"`
	Trend          *trend.Result `json:"trend"`
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	feature := chi.URLParam(r, "feature")
	q := r.URL.Query()
	index := q.Get("index")
	date := q.Get("date")

	key := cache.Key("kpi", dataset, index+":"+feature, date, "", 0, 0)
	out, err := cache.GetOrCompute(r.Context(), s.cache, key, s.ttl, func() (*kpiResponse, error) {
		return s.computeKPI(dataset, feature, index, date)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) computeKPI(dataset, feature, index, date string) (*kpiResponse, error) {
	requested, err := store.ParseYYYYMM(date)
	if err != nil {
		return nil, err
	}
	name, err := s.store.FetchFeatureName(dataset, feature)
	if err != nil {
		return nil, err
	}

	effective, value, note, err := s.store.ResolveEffectiveMonth(dataset, feature, index, requested)
	if err != nil {
		return nil, err
	}

	out := &kpiResponse{
		Feature:        name,
		RequestedMonth: requested.Format("2006-01"),
		EffectiveMonth: effective.Format("2006-01"),
		Note:           note,
		Latest:         value,
		Severity:       drought.ClassForIndex(index, value),
	}

	// Summary statistics cover the history up to the effective month.
	values, err := s.store.FetchValuesUpTo(dataset, feature, index, &effective)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		min, max, sum := values[0], values[0], 0.0
		for _, v := range values {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		mean := sum / float64(len(values))
		out.Min, out.Max, out.Mean = &min, &max, &mean
	}

	tr, err := s.featureTrend(dataset, feature, index)
	if err != nil {
		return nil, err
	}
	out.Trend = tr
	return out, nil
}

// featureTrend reads the persisted trend, computing and persisting the full
// history once on a cold miss. A feature with no values at all gets the
// insufficient-data result without a trend_stats row.
func (s *Server) featureTrend(dataset, feature, index string) (*trend.Result, error) {
	if tr, err := s.store.GetTrendStat(dataset, index, feature); err != nil {
		return nil, err
	} else if tr != nil {
		return tr, nil
	}

	values, err := s.store.FetchValuesUpTo(dataset, feature, index, nil)
	if err != nil {
		return nil, err
	}
	result := trend.Compute(values)
	if len(values) > 0 {
		if err := s.store.UpsertTrendStats(dataset, index, feature, result); err != nil {
			return nil, err
		}
		metrics.TrendComputationsTotal.WithLabelValues("cold").Inc()
	}
	return &result, nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleLegacyRegions(w http.ResponseWriter, r *http.Request) {
	level := chi.URLParam(r, "level")
	writeJSON(w, http.StatusOK, s.legacy.ListRegions(level))
}

func (s *Server) handleLegacyMapData(w http.ResponseWriter, r *http.Request) {
	level := chi.URLParam(r, "level")
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.legacy.MapFeatures(level, q.Get("index"), q.Get("date")))
}

func (s *Server) handleLegacyTimeseries(w http.ResponseWriter, r *http.Request) {
	level := chi.URLParam(r, "level")
	feature := chi.URLParam(r, "feature")
	index := r.URL.Query().Get("index")
	writeJSON(w, http.StatusOK, s.legacy.ExtractTimeseries(level, feature, index))
}
