// Package cache is the two-tier result cache for read endpoints: redis when
// configured, always backed by a bounded in-process map. Cache failures are
// never surfaced to callers; a broken cache degrades to computing every
// request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hydrosense/droughtmap/internal/store"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Key builds a deterministic cache key for one read operation. The bbox is
// normalized and rounded to two decimals so nearby viewports share entries.
func Key(op, dataset, index, month, bbox string, limit, offset int) string {
	b := store.ParseBBox(bbox)
	bboxPart := ""
	if b != nil {
		bboxPart = fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", b.MinX, b.MinY, b.MaxX, b.MaxY)
	}
	return strings.Join([]string{
		op,
		strings.ToLower(strings.TrimSpace(dataset)),
		strings.ToLower(strings.TrimSpace(index)),
		month,
		bboxPart,
		fmt.Sprintf("%d:%d", limit, offset),
	}, ":")
}

// GetOrCompute runs one read through the cache: a hit decodes into T, a miss
// computes, stores and returns. Decode failures count as misses so a
// payload-shape change after a deploy self-heals.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if c != nil {
		if raw, ok := c.Get(ctx, key); ok {
			var out T
			if err := json.Unmarshal(raw, &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	if c != nil {
		if raw, err := json.Marshal(out); err == nil {
			c.Set(ctx, key, raw, ttl)
		}
	}
	return out, nil
}
