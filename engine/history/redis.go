package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// DefaultKeyPrefix namespaces history keys.
const DefaultKeyPrefix = "chainrisk:history:"

// RedisBackend stores one sorted set per entity, scored by the record's
// unix time in microseconds.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("history: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("history: connect redis: %w", err)
	}
	return NewRedisBackend(client, ""), nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error { return r.client.Close() }

func (r *RedisBackend) key(entityID string) string { return r.prefix + entityID }

// Append implements Backend.
func (r *RedisBackend) Append(ctx context.Context, rec domain.HistoricalResilienceScore) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	z := redis.Z{Score: float64(rec.RecordedAt.UnixMicro()), Member: data}
	if err := r.client.ZAdd(ctx, r.key(rec.EntityID), z).Err(); err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// Since implements Backend.
func (r *RedisBackend) Since(ctx context.Context, entityID string, since time.Time) ([]domain.HistoricalResilienceScore, error) {
	lo := "-inf"
	if !since.IsZero() {
		lo = strconv.FormatInt(since.UnixMicro(), 10)
	}
	members, err := r.client.ZRevRangeByScore(ctx, r.key(entityID), &redis.ZRangeBy{Min: lo, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrangebyscore: %w", err)
	}
	out := make([]domain.HistoricalResilienceScore, 0, len(members))
	for _, m := range members {
		var rec domain.HistoricalResilienceScore
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
