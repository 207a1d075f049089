// Package tasks wraps the scheduled trend recompute in an asynq task, so
// the nightly job survives worker restarts and failed runs retry with
// backoff instead of silently skipping a night.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/hydrosense/droughtmap/internal/metrics"
	"github.com/hydrosense/droughtmap/internal/store"
)

const (
	TypeTrendRecompute = "trend:recompute"

	// Queue is the asynq queue all drought tasks run on.
	Queue = "drought"
)

// TrendRecomputePayload scopes a recompute. An empty Dataset means every
// dataset; an empty Index means every index of the scoped datasets.
type TrendRecomputePayload struct {
	Dataset string `json:"dataset"`
	Index   string `json:"index"`
}

// NewTrendRecomputeTask builds the task for one recompute scope.
func NewTrendRecomputeTask(dataset, index string) (*asynq.Task, error) {
	payload, err := json.Marshal(TrendRecomputePayload{Dataset: dataset, Index: index})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTrendRecompute, payload, asynq.Queue(Queue)), nil
}

// Handler processes trend recompute tasks against the store.
type Handler struct {
	Store *store.Store
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p TrendRecomputePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}

	var keys []string
	if p.Dataset != "" {
		keys = []string{p.Dataset}
	} else {
		datasets, err := h.Store.ListDatasets()
		if err != nil {
			return fmt.Errorf("list datasets: %w", err)
		}
		for _, d := range datasets {
			keys = append(keys, d.Key)
		}
	}

	for _, key := range keys {
		indices := []string{p.Index}
		if p.Index == "" {
			var err error
			indices, err = h.Store.AvailableIndices(key)
			if err != nil {
				return fmt.Errorf("indices for %s: %w", key, err)
			}
		}
		for _, idx := range indices {
			n, err := h.Store.PrecomputeTrendStats(key, idx)
			if err != nil {
				return fmt.Errorf("recompute trends %s/%s: %w", key, idx, err)
			}
			metrics.TrendComputationsTotal.WithLabelValues("scheduled").Add(float64(n))
			log.Printf("trend recompute %s/%s: %d features", key, idx, n)
		}
	}
	return nil
}

// NewServeMux wires the task types to their handlers for the worker
// subcommand.
func NewServeMux(st *store.Store) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeTrendRecompute, &Handler{Store: st})
	return mux
}
