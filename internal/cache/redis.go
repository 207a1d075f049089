package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/hydrosense/droughtmap/internal/metrics"
)

// Redis is the fast shared tier. Connectivity problems after startup are
// logged and treated as misses; the service keeps answering from the store.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redis, probing with exponential backoff so a service
// starting alongside its redis container does not flap. Gives up after
// maxElapsed and returns an error; the caller decides whether redis is
// required.
func NewRedis(addr, password string, db int, maxElapsed time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", addr, err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(operation, bo); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.CacheLookupsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("redis", "error").Inc()
		log.Printf("redis get %s: %v", key, err)
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("redis", "hit").Inc()
	return raw, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("redis set %s: %v", key, err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
