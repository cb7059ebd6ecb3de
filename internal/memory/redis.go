package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "agentforge:conversations:"

// RedisLog keeps each user's exchanges in a Redis list, oldest first.
// Recent reads only the tail of the list.
type RedisLog struct {
	client *redis.Client
}

func NewRedisLog(ctx context.Context, redisURL string) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisLog{client: client}, nil
}

func listKey(userID string) string { return redisKeyPrefix + userID }
func seqKey(userID string) string  { return redisKeyPrefix + userID + ":seq" }

func (s *RedisLog) Append(ctx context.Context, ex Exchange) (Exchange, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	seq, err := s.client.Incr(ctx, seqKey(ex.UserID)).Result()
	if err != nil {
		return Exchange{}, fmt.Errorf("allocate seq: %w", err)
	}
	ex.Seq = seq

	payload, err := json.Marshal(ex)
	if err != nil {
		return Exchange{}, fmt.Errorf("marshal exchange: %w", err)
	}
	if err := s.client.RPush(ctx, listKey(ex.UserID), payload).Err(); err != nil {
		return Exchange{}, fmt.Errorf("push exchange: %w", err)
	}
	return ex, nil
}

func (s *RedisLog) Recent(ctx context.Context, userID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, listKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent exchanges: %w", err)
	}
	items := make([]Exchange, 0, len(raw))
	for _, entry := range raw {
		var ex Exchange
		if err := json.Unmarshal([]byte(entry), &ex); err != nil {
			return nil, fmt.Errorf("decode exchange: %w", err)
		}
		items = append(items, ex)
	}
	return items, nil
}

func (s *RedisLog) Close() error {
	return s.client.Close()
}
