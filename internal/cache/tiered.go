package cache

import (
	"context"
	"time"
)

// Tiered reads through fast (redis) then slow (memory), backfilling the
// fast tier on a slow-tier hit. Either tier may be nil.
type Tiered struct {
	Fast Cache
	Slow Cache
}

func NewTiered(fast, slow Cache) *Tiered {
	return &Tiered{Fast: fast, Slow: slow}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.Fast != nil {
		if v, ok := t.Fast.Get(ctx, key); ok {
			return v, true
		}
	}
	if t.Slow != nil {
		if v, ok := t.Slow.Get(ctx, key); ok {
			return v, true
		}
	}
	return nil, false
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if t.Fast != nil {
		t.Fast.Set(ctx, key, value, ttl)
	}
	if t.Slow != nil {
		t.Slow.Set(ctx, key, value, ttl)
	}
}
