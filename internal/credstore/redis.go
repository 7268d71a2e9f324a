package credstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "taskbell:credentials:"

// Redis keeps credentials of one profile in a single hash
type Redis struct {
	client *redis.Client
	key    string
}

func OpenRedis(ctx context.Context, dsn string) (*Redis, error) {
	clean, profile, _, err := splitProfile(dsn)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(clean)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedis(client, profile), nil
}

func NewRedis(client *redis.Client, profile string) *Redis {
	return &Redis{client: client, key: redisKeyPrefix + profile}
}

func (r *Redis) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := r.client.HMGet(ctx, r.key, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

// Set writes all values in one MULTI/EXEC block
func (r *Redis) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	args := make([]any, 0, 2*len(values))
	for k, v := range values {
		args = append(args, k, v)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.HDel(ctx, r.key, keys...).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
