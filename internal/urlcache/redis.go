package urlcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey = "trendpulse:urls"
	DefaultTTL = 7 * 24 * time.Hour

	pingTimeout = 5 * time.Second
)

// Config configures the Redis connection and the set holding known URLs.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// Redis keeps persisted URLs in a Redis set. The whole set expires TTL after
// the last write, so a quiet deployment falls back to store lookups.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis connects and verifies the server answers PING.
func NewRedis(cfg Config) (*Redis, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

// Known returns the subset of urls present in the set.
func (r *Redis) Known(ctx context.Context, urls []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if len(urls) == 0 {
		return known, nil
	}

	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}

	hits, err := r.client.SMIsMember(ctx, r.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smismember: %w", err)
	}
	for i, hit := range hits {
		if hit {
			known[urls[i]] = struct{}{}
		}
	}
	return known, nil
}

// Add records urls and refreshes the set's expiry.
func (r *Redis) Add(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.key, members...)
		pipe.Expire(ctx, r.key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
