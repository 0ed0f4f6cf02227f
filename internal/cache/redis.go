// Package cache provides the Redis-backed result cache and pass locks.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fredphp/yunwei/internal/config"
)

const keyPrefix = "yunwei"

// Key joins parts under the service key prefix.
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

// releaseScript deletes a lock only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis caches encoded results and hands out pass locks.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

// New connects to Redis and verifies the connection.
func New(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Redis{client: client, ttl: cfg.CacheTTL, lockTTL: cfg.LockTTL}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Version returns the data version of scope. It starts at 0 and moves on every Bump.
func (r *Redis) Version(ctx context.Context, scope string) (int64, error) {
	v, err := r.client.Get(ctx, Key("version", scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s version: %w", scope, err)
	}
	return v, nil
}

// Bump invalidates every cached entry keyed on the current version of scope.
func (r *Redis) Bump(ctx context.Context, scope string) error {
	if err := r.client.Incr(ctx, Key("version", scope)).Err(); err != nil {
		return fmt.Errorf("bumping %s version: %w", scope, err)
	}
	return nil
}

// GetJSON decodes the cached value at key into dest. found is false on a miss.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value at key for the configured TTL.
func (r *Redis) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Acquire takes the named lock if nobody holds it. The returned release func is a no-op
// when the lock was not acquired. Locks expire after the configured TTL in case the holder
// dies.
func (r *Redis) Acquire(ctx context.Context, name string) (release func(), acquired bool, err error) {
	key := Key("lock", name)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, r.client, []string{key}, token)
	}, true, nil
}
