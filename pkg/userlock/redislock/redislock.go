// Package redislock implements userlock.Locker on Redis so that several
// drills processes serialize the same user's work.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/drills/pkg/userlock"
)

const (
	defaultTTL       = 2 * time.Minute
	defaultRetry     = 50 * time.Millisecond
	defaultKeyPrefix = "drills:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config is the configuration options for the Redis locker.
type Config struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr string

	// TTL bounds how long a crashed holder can keep a lock (defaults to 2m).
	TTL time.Duration

	// RetryInterval is the polling interval while waiting (defaults to 50ms).
	RetryInterval time.Duration

	// KeyPrefix namespaces lock keys (defaults to "drills:lock:").
	KeyPrefix string

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Locker is a Redis-backed userlock.Locker.
type Locker struct {
	rdb    goredis.UniversalClient
	config Config
	logger *slog.Logger
}

var _ userlock.Locker = (*Locker)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, c Config) (*Locker, error) {
	if c.Addr == "" {
		return nil, errors.New("redis lock requires an address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        c.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(rdb, c), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient, c Config) *Locker {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetry
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Locker{rdb: rdb, config: c, logger: c.Logger}
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (userlock.Unlock, error) {
	redisKey := l.config.KeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.config.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release even when the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.rdb.Close()
}
