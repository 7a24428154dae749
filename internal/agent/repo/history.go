package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// RedisHistoryRepository keeps one capped Redis list of answered questions per conversation.
type RedisHistoryRepository struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	maxRecords int
}

func NewRedisHistoryRepository(rdb redis.Cmdable, cfg model.HistoryConfig) *RedisHistoryRepository {
	return &RedisHistoryRepository{rdb: rdb, ttl: cfg.TTL, maxRecords: cfg.MaxRecords}
}

func (r *RedisHistoryRepository) historyKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:history", conversationID)
}

func (r *RedisHistoryRepository) Append(ctx context.Context, conversationID string, record model.HistoryRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to marshal history record")
		return fmt.Errorf("marshal history record: %w", err)
	}
	key := r.historyKey(conversationID)

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, b)
		if r.maxRecords > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxRecords), -1)
		}
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append history record to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisHistoryRepository) Recent(ctx context.Context, conversationID string, n int) ([]model.HistoryRecord, error) {
	if n <= 0 {
		return []model.HistoryRecord{}, nil
	}
	key := r.historyKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.HistoryRecord{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.HistoryRecord, 0, len(rows))
	for i, s := range rows {
		var rec model.HistoryRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Int("index", i).Msg("failed to unmarshal history record")
			return nil, fmt.Errorf("unmarshal history record at index %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisHistoryRepository) Clear(ctx context.Context, conversationID string) error {
	key := r.historyKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisHistoryRepository) Count(ctx context.Context, conversationID string) (int, error) {
	key := r.historyKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get history count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.HistoryRepository = (*RedisHistoryRepository)(nil)
