package storedrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

const keyPrefix = "storedrequest:"

// Cache stores fragments by key. Both operations must finish within d.
type Cache interface {
	// Get returns the entries found for keys. Missing keys are absent.
	Get(ctx context.Context, d deadline.Deadline, keys []string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, d deadline.Deadline, entries map[string]json.RawMessage) error
}

// CachingFetcher consults a Cache before delegating misses to another Fetcher
// and populates the cache with what the delegate returns. Cache failures
// degrade to the delegate.
type CachingFetcher struct {
	cache    Cache
	delegate Fetcher
	logger   *slog.Logger
}

// NewCachingFetcher wraps delegate with cache.
func NewCachingFetcher(cache Cache, delegate Fetcher, logger *slog.Logger) *CachingFetcher {
	return &CachingFetcher{cache: cache, delegate: delegate, logger: logger}
}

func cacheKey(kind, id string) string {
	return keyPrefix + kind + ":" + id
}

// FetchRequests implements Fetcher.
func (f *CachingFetcher) FetchRequests(ctx context.Context, d deadline.Deadline, requestIDs, impIDs []string) (*Result, error) {
	res := newResult()
	if len(requestIDs) == 0 && len(impIDs) == 0 {
		return res, nil
	}

	keys := make([]string, 0, len(requestIDs)+len(impIDs))
	for _, id := range requestIDs {
		keys = append(keys, cacheKey(model.KindRequest, id))
	}
	for _, id := range impIDs {
		keys = append(keys, cacheKey(model.KindImp, id))
	}

	cached, err := f.cache.Get(ctx, d, keys)
	if err != nil {
		f.logger.Warn("stored request cache get failed", "error", err)
		cached = nil
	}

	var missReq, missImp []string
	for _, id := range requestIDs {
		if v, ok := cached[cacheKey(model.KindRequest, id)]; ok {
			res.Requests[id] = v
		} else {
			missReq = append(missReq, id)
		}
	}
	for _, id := range impIDs {
		if v, ok := cached[cacheKey(model.KindImp, id)]; ok {
			res.Imps[id] = v
		} else {
			missImp = append(missImp, id)
		}
	}
	if len(missReq) == 0 && len(missImp) == 0 {
		return res, nil
	}

	fetched, err := f.delegate.FetchRequests(ctx, d, missReq, missImp)
	if err != nil {
		return nil, err
	}

	fill := make(map[string]json.RawMessage, len(fetched.Requests)+len(fetched.Imps))
	for id, v := range fetched.Requests {
		res.Requests[id] = v
		fill[cacheKey(model.KindRequest, id)] = v
	}
	for id, v := range fetched.Imps {
		res.Imps[id] = v
		fill[cacheKey(model.KindImp, id)] = v
	}
	if len(fill) > 0 {
		if err := f.cache.Set(ctx, d, fill); err != nil {
			f.logger.Warn("stored request cache set failed", "error", err)
		}
	}

	return res, nil
}

// RedisCache implements Cache on Redis with a fixed entry TTL. Every round
// trip is bounded by the caller's deadline.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	runner *bounded.Runner
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, ttl time.Duration, runner *bounded.Runner) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisCache(client, ttl, runner), nil
}

func newRedisCache(client redis.UniversalClient, ttl time.Duration, runner *bounded.Runner) *RedisCache {
	if runner == nil {
		runner = bounded.NewRunner(nil, nil)
	}
	return &RedisCache{client: client, ttl: ttl, runner: runner}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, d deadline.Deadline, keys []string) (map[string]json.RawMessage, error) {
	values, err := bounded.Run(ctx, c.runner, d, "redis cache get", func(ctx context.Context) ([]any, error) {
		values, err := c.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(keys))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[keys[i]] = json.RawMessage(s)
		}
	}
	return out, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, d deadline.Deadline, entries map[string]json.RawMessage) error {
	_, err := bounded.Run(ctx, c.runner, d, "redis cache set", func(ctx context.Context) (struct{}, error) {
		pipe := c.client.Pipeline()
		for k, v := range entries {
			pipe.Set(ctx, k, []byte(v), c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return struct{}{}, fmt.Errorf("redis pipeline set: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
