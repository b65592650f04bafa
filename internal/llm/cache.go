package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache stores raw completions by key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type cached struct {
	next  Generator
	cache ResponseCache
	ttl   time.Duration
}

// Cache serves repeated (model, options, prompt) requests from cache.
// Cache errors are logged and the backend is called as if nothing was cached.
func Cache(next Generator, cache ResponseCache, ttl time.Duration) Generator {
	if cache == nil {
		return next
	}
	return &cached{next: next, cache: cache, ttl: ttl}
}

func (c *cached) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	key := CacheKey(prompt, modelName, opts)

	if val, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("response cache read failed", "error", err)
	} else if ok {
		slog.Debug("response cache hit", "model", modelName)
		return val, nil
	}

	out, err := c.next.Generate(ctx, prompt, modelName, opts)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		slog.Warn("response cache write failed", "error", err)
	}
	return out, nil
}

// CacheKey derives a stable key from everything that shapes a completion.
func CacheKey(prompt, modelName string, opts Options) string {
	h := sha256.New()
	for _, part := range []string{
		modelName,
		strconv.FormatFloat(opts.Temperature, 'g', -1, 64),
		strconv.FormatFloat(opts.TopP, 'g', -1, 64),
		prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisCache is a ResponseCache backed by Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to the Redis server at redisURL and verifies it.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping Redis: %w", err)
	}
	return &RedisCache{client: client, prefix: "quizgen:completion:"}, nil
}

// Get returns the cached value for key, if any.
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores value under key for ttl (0 keeps it forever).
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Close closes the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
