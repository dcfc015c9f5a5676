// Package lock provides a Redis lease that keeps periodic work to a single
// process at a time.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease is held for as long as the holder keeps it: the key is renewed
// every ttl/3 until release, so ttl only bounds how long a crashed holder
// blocks the others.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisLease {
	return &RedisLease{client: client, key: key, ttl: ttl, logger: logger}
}

// Acquire tries once to take the lease. ok is false when another holder has
// it. release stops the renewal and gives the key up; calling it more than
// once is harmless.
func (l *RedisLease) Acquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("RedisLease.Acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		l.renew(renewCtx, token)
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			stop()
			<-renewed

			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
				l.logger.Warn("failed to release lease", "key", l.key, "error", err)
			}
		})
	}
	return release, true, nil
}

// renew keeps the key alive until ctx ends or the key stops holding token.
// A failed renewal is retried on the next tick; the key may still expire if
// Redis stays unreachable for a whole ttl.
func (l *RedisLease) renew(ctx context.Context, token string) {
	ticker := time.NewTicker(max(l.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := renewScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("failed to renew lease", "key", l.key, "error", err)
			continue
		}
		if n == 0 {
			l.logger.Warn("lease lost to another holder", "key", l.key)
			return
		}
	}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewRedisClient: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}
	return client, nil
}
