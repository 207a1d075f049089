// Package api composes the store, the result cache and the legacy loader
// into the HTTP surface of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydrosense/droughtmap/internal/cache"
	"github.com/hydrosense/droughtmap/internal/legacy"
	"github.com/hydrosense/droughtmap/internal/metrics"
	"github.com/hydrosense/droughtmap/internal/store"
)

const defaultCacheTTL = 5 * time.Minute

type Server struct {
	store  *store.Store
	cache  cache.Cache
	legacy *legacy.Loader
	port   string
	ttl    time.Duration
}

func NewServer(st *store.Store, c cache.Cache, lg *legacy.Loader, port string, ttl time.Duration) *Server {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Server{store: st, cache: c, legacy: lg, port: port, ttl: ttl}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/datasets", s.handleDatasets)
	r.Route("/datasets/{dataset}", func(r chi.Router) {
		r.Get("/meta", s.handleMeta)
		r.Get("/mapdata", s.handleMapData)
		r.Get("/overview", s.handleOverview)
		r.Route("/features/{feature}", func(r chi.Router) {
			r.Get("/timeseries", s.handleTimeseries)
			r.Get("/kpi", s.handleKPI)
		})
	})
	r.Route("/regions/{level}", func(r chi.Router) {
		r.Get("/", s.handleLegacyRegions)
		r.Get("/mapdata", s.handleLegacyMapData)
		r.Get("/features/{feature}/timeseries", s.handleLegacyTimeseries)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument records per-route request counts and latencies.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeError maps the store's error taxonomy onto HTTP statuses. Client
// input errors are 4xx; a dataset that was registered but never imported is
// an operational 503, not a client mistake.
func writeError(w http.ResponseWriter, err error) {
	var unknown *store.UnknownIndexError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidIdentifier):
		status = http.StatusBadRequest
	case errors.As(err, &unknown):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrNotImported):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
