package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecordCache adapts a redis client to the RecordCache interface and
// gives the serving API cache reads.
type RedisRecordCache struct {
	client *redis.Client
}

func NewRedisRecordCache(client *redis.Client) *RedisRecordCache {
	return &RedisRecordCache{client: client}
}

func (c *RedisRecordCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get returns the cached payload, or nil with no error on a cache miss.
func (c *RedisRecordCache) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return payload, err
}
