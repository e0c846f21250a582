package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-events/internal/cache"
	"github.com/oggyb/muzz-events/internal/config"
)

func setupCache(t *testing.T, timeout time.Duration) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Lock.TTL = 5 * time.Second
	cfg.Lock.Timeout = timeout

	c := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestKeyForPairLockIsOrderIndependent(t *testing.T) {
	c, _ := setupCache(t, time.Second)
	assert.Equal(t, c.KeyForPairLock(3, 9), c.KeyForPairLock(9, 3))
	assert.Equal(t, "lock:pair:3:9", c.KeyForPairLock(9, 3))
}

func TestWithLockReleasesKey(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t, time.Second)

	err := c.WithLock(ctx, "lock:test", func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:test"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:test"))
}

func TestWithLockPropagatesError(t *testing.T) {
	c, mr := setupCache(t, time.Second)
	boom := errors.New("boom")

	err := c.WithLock(context.Background(), "lock:test", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:test"))
}

func TestWithLockTimesOutWhenHeld(t *testing.T) {
	c, mr := setupCache(t, 100*time.Millisecond)
	require.NoError(t, mr.Set("lock:busy", "someone-else"))

	called := false
	err := c.WithLock(context.Background(), "lock:busy", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, cache.ErrLockTimeout)
	assert.False(t, called)

	// a foreign token is never released by us
	got, _ := mr.Get("lock:busy")
	assert.Equal(t, "someone-else", got)
}

func TestWithLockSerializesHolders(t *testing.T) {
	c, _ := setupCache(t, 5*time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.WithLock(context.Background(), "lock:serial", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t, time.Second)

	sub := c.Client.Subscribe(ctx, c.ChannelForUser("a@example.com"))
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	n, err := c.Publish(ctx, c.ChannelForUser("a@example.com"), "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Payload)
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t, time.Second)

	v, err := c.Get(ctx, c.KeyForLikeCount(7))
	require.NoError(t, err)
	assert.Empty(t, v, "miss is not an error")

	require.NoError(t, c.Set(ctx, c.KeyForLikeCount(7), 3, time.Hour))
	v, err = c.Get(ctx, "likes:count:7")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	assert.Equal(t, time.Hour, mr.TTL("likes:count:7"))

	require.NoError(t, c.Del(ctx, "likes:count:7", "likes:count:8"))
	assert.False(t, mr.Exists("likes:count:7"))
}
