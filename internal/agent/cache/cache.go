// Package cache stores final answers keyed by the normalized question.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// Cache substitutes the whole pipeline for a question already answered.
type Cache interface {
	Lookup(ctx context.Context, question string) (string, bool, error)
	Update(ctx context.Context, question, response string) error
}

const (
	keyPrefix = "cache:response:"
	indexKey  = "cache:response:index"

	fieldResponse    = "response"
	fieldLastAccess  = "last_access"
	fieldAccessCount = "access_count"
)

// Normalize lowercases the question and collapses whitespace.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func entryKey(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// RedisCache keeps one hash per entry and a sorted set of entries scored by
// last access. Entries beyond MaxEntries are evicted least recent first.
type RedisCache struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewRedisCache(rdb redis.Cmdable, cfg model.CacheConfig) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: cfg.TTL, maxEntries: cfg.MaxEntries, now: time.Now}
}

func (c *RedisCache) Lookup(ctx context.Context, question string) (string, bool, error) {
	key := entryKey(question)
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to read cache entry")
		return "", false, errx.WrapRedis(err)
	}
	resp, ok := vals[fieldResponse]
	if !ok {
		// expired entries leave their index member behind
		if err := c.rdb.ZRem(ctx, indexKey, key).Err(); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("failed to drop stale cache index entry")
		}
		return "", false, nil
	}

	now := c.now()
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldLastAccess, now.UnixMilli())
		pipe.HIncrBy(ctx, key, fieldAccessCount, 1)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		// the response is still good
		logx.Warn().Err(err).Str("key", key).Msg("failed to touch cache entry")
	}
	return resp, true, nil
}

func (c *RedisCache) Update(ctx context.Context, question, response string) error {
	key := entryKey(question)
	now := c.now()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldResponse, response,
			fieldLastAccess, now.UnixMilli(),
			fieldAccessCount, 0,
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write cache entry")
		return errx.WrapRedis(err)
	}
	return c.evict(ctx)
}

func (c *RedisCache) evict(ctx context.Context) error {
	if c.maxEntries <= 0 {
		return nil
	}
	n, err := c.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	excess := n - int64(c.maxEntries)
	if excess <= 0 {
		return nil
	}
	victims, err := c.rdb.ZRange(ctx, indexKey, 0, excess-1).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	members := make([]any, len(victims))
	for i, v := range victims {
		members[i] = v
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, victims...)
		pipe.ZRem(ctx, indexKey, members...)
		return nil
	})
	if err != nil {
		return errx.WrapRedis(err)
	}
	logx.Debug().Int("evicted", len(victims)).Msg("Evicted cache entries")
	return nil
}

// AccessCount returns how often an entry was served; zero when absent.
func (c *RedisCache) AccessCount(ctx context.Context, question string) (int, error) {
	v, err := c.rdb.HGet(ctx, entryKey(question), fieldAccessCount).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errx.WrapRedis(err)
	}
	return strconv.Atoi(v)
}

// Noop never hits.
type Noop struct{}

func (Noop) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }

func (Noop) Update(context.Context, string, string) error { return nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Noop{}
)
