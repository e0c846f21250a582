package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-events/internal/config"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const lockRetryInterval = 25 * time.Millisecond

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	Client *redis.Client

	lockTTL     time.Duration
	lockTimeout time.Duration
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	c := &RedisCache{
		Client:      redis.NewClient(opts),
		lockTTL:     cfg.Lock.TTL,
		lockTimeout: cfg.Lock.Timeout,
	}
	if c.lockTTL <= 0 {
		c.lockTTL = 10 * time.Second
	}
	if c.lockTimeout <= 0 {
		c.lockTimeout = 3 * time.Second
	}
	return c
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key. A missing key is "" with a nil error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForLikeCount is the cache key of a user's "liked you" counter.
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

// KeyForPairLock is the lock key for an unordered user pair.
// KeyForPairLock(a, b) == KeyForPairLock(b, a).
func (c *RedisCache) KeyForPairLock(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("lock:pair:%d:%d", a, b)
}

// KeyForEventLock is the lock key serializing matchmaking runs of one event.
func (c *RedisCache) KeyForEventLock(eventID uint64) string {
	return fmt.Sprintf("lock:event:%d", eventID)
}

// ChannelForUser is the pub/sub channel chat messages for a user are published on.
func (c *RedisCache) ChannelForUser(email string) string {
	return "chat:" + email
}

// WithLock runs fn while holding the named lock.
//
// Behavior:
//   - Retries SET NX until the lock is free or the lock timeout elapses.
//   - The lock carries a TTL so a crashed holder never blocks forever.
//   - Release only deletes the key if it still holds our token.
func (c *RedisCache) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := c.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		// release on a fresh context so a cancelled request still unlocks
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, c.Client, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (c *RedisCache) acquire(ctx context.Context, key string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.lockTimeout)
	for {
		ok, err := c.Client.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Publish sends payload to a pub/sub channel and returns the number of receivers.
func (c *RedisCache) Publish(ctx context.Context, channel string, payload any) (int64, error) {
	return c.Client.Publish(ctx, channel, payload).Result()
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
