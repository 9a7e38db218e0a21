package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/voice-transcriber/internal/config"
)

const (
	artifactKeyPrefix = "artifact:exists:"
	defaultTTL        = time.Hour
	pingTimeout       = 5 * time.Second
)

// ArtifactCache remembers which result artifacts were last seen in the object store. It is a
// hint: the store stays authoritative, and callers drop entries the store no longer has.
type ArtifactCache interface {
	Known(ctx context.Context, path string) (bool, error)
	Remember(ctx context.Context, path string) error
	Forget(ctx context.Context, path string) error
	Close() error
}

type redisArtifactCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopArtifactCache struct{}

// NewArtifactCache connects to Redis when caching is enabled and returns a no-op cache otherwise.
// The connection is verified before returning.
func NewArtifactCache(ctx context.Context, cfg config.CacheConfig) (ArtifactCache, error) {
	if !cfg.Enabled {
		return &noopArtifactCache{}, nil
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("artifact cache: redis %s unreachable: %w", opts.Addr, err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisArtifactCache{client: client, ttl: ttl}, nil
}

func NewNoopArtifactCache() ArtifactCache {
	return &noopArtifactCache{}
}

// redisOptions prefers REDIS_URL and falls back to host, port, password and db.
func redisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("artifact cache: invalid redis url: %w", err)
		}
		return opts, nil
	}

	host, port := cfg.RedisHost, cfg.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func (c *redisArtifactCache) Known(ctx context.Context, path string) (bool, error) {
	n, err := c.client.Exists(ctx, artifactKey(path)).Result()
	if err != nil {
		return false, fmt.Errorf("artifact cache: lookup %s: %w", path, err)
	}
	return n > 0, nil
}

func (c *redisArtifactCache) Remember(ctx context.Context, path string) error {
	if err := c.client.Set(ctx, artifactKey(path), 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("artifact cache: remember %s: %w", path, err)
	}
	return nil
}

func (c *redisArtifactCache) Forget(ctx context.Context, path string) error {
	if err := c.client.Del(ctx, artifactKey(path)).Err(); err != nil {
		return fmt.Errorf("artifact cache: forget %s: %w", path, err)
	}
	return nil
}

func (c *redisArtifactCache) Close() error {
	return c.client.Close()
}

func (n *noopArtifactCache) Known(context.Context, string) (bool, error) { return false, nil }
func (n *noopArtifactCache) Remember(context.Context, string) error      { return nil }
func (n *noopArtifactCache) Forget(context.Context, string) error        { return nil }
func (n *noopArtifactCache) Close() error                                { return nil }

func artifactKey(path string) string {
	return artifactKeyPrefix + path
}
