package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dalfonso89/emi-calculator/internal/models"
)

// RedisStore keeps msgpack-encoded snapshots in Redis with a TTL
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects to addr and verifies the connection with a ping
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps an existing client; keys are "<prefix>:<anchor>"
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(anchor string) string {
	return r.prefix + ":" + anchor
}

func (r *RedisStore) Get(ctx context.Context, anchor string) (models.RateSnapshot, bool, error) {
	raw, err := r.client.Get(ctx, r.key(anchor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RateSnapshot{}, false, nil
	}
	if err != nil {
		return models.RateSnapshot{}, false, fmt.Errorf("cache: get: %w", err)
	}

	var snapshot models.RateSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return models.RateSnapshot{}, false, fmt.Errorf("cache: decode: %w", err)
	}
	return snapshot, true, nil
}

func (r *RedisStore) Set(ctx context.Context, anchor string, snapshot models.RateSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(anchor), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}
