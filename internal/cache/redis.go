package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// Redis implements Cache on a Redis instance so multiple pipeline replicas
// share validation outcomes. TTL and eviction are delegated to Redis itself.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type) (*validation.Result, bool, error) {
	val, err := r.client.Get(ctx, Key(fp, ct)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var result validation.Result
	if err := json.Unmarshal(val, &result); err != nil {
		// A corrupt entry is treated as a miss; the pipeline recomputes it.
		_ = r.client.Del(ctx, Key(fp, ct)).Err()
		return nil, false, nil
	}
	return &result, true, nil
}

func (r *Redis) Put(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type, result *validation.Result, ttl time.Duration) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.client.Set(ctx, Key(fp, ct), body, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type) error {
	if err := r.client.Del(ctx, Key(fp, ct)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis dbsize: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
