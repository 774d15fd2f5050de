package dtcsearch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Searcher is satisfied by *Index and *Cache.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// RedisAPI is the subset of *redis.Client the cache uses.
type RedisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache memoizes Search results in Redis. Redis failures are logged and
// the search falls through to the wrapped Searcher.
type Cache struct {
	next   Searcher
	rdb    RedisAPI
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache wraps next with a Redis cache whose entries live for ttl.
func NewCache(next Searcher, rdb RedisAPI, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// CacheKey is the Redis key for query and topK. Queries differing only in
// case or spacing share a key.
func CacheKey(query string, topK int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha1.Sum([]byte(norm))
	return fmt.Sprintf("dtcsearch:%d:%s", topK, hex.EncodeToString(sum[:]))
}

func (c *Cache) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	key := CacheKey(query, topK)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var hits []Hit
		if err := json.Unmarshal(data, &hits); err == nil {
			return hits, nil
		}
		c.logger.Warn("dtcsearch: corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("dtcsearch: cache get", "key", key, "err", err)
	}

	hits, err := c.next.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(hits); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("dtcsearch: cache set", "key", key, "err", err)
		}
	}
	return hits, nil
}
