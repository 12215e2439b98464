package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lecturelab/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not-a-url")
	assert.Error(t, err)
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

// seed writes a fresh key.
func seed(t *testing.T, rc *cache.RedisCache, key, value string, ttl time.Duration) {
	t.Helper()
	ok, err := rc.SetNX(context.Background(), key, []byte(value), ttl)
	require.NoError(t, err)
	require.True(t, ok, "key %s already present", key)
}

// --- Get ---

func TestSetNXGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	seed(t, rc, "test:key", "hello", 10*time.Second)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSetNX_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	seed(t, rc, "expiry:key", "temp", 1*time.Second)
	time.Sleep(1500 * time.Millisecond)

	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- SetNX ---

func TestSetNX_OnlyFirstWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "nx:key", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.SetNX(ctx, "nx:key", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, _, err := rc.Get(ctx, "nx:key")
	require.NoError(t, err)
	assert.Equal(t, "first", string(val))
}

// --- Swap ---

func TestSwap_ReplacesValue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	seed(t, rc, "swap:key", "1", time.Minute)

	out, err := rc.Swap(ctx, "swap:key", time.Minute, func(old []byte) ([]byte, error) {
		assert.Equal(t, "1", string(old))
		return []byte("2"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2", string(out))

	val, _, err := rc.Get(ctx, "swap:key")
	require.NoError(t, err)
	assert.Equal(t, "2", string(val))
}

func TestSwap_FnErrorLeavesValue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	seed(t, rc, "swap:err", "keep", time.Minute)

	boom := errors.New("rejected")
	_, err := rc.Swap(ctx, "swap:err", time.Minute, func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	val, _, err := rc.Get(ctx, "swap:err")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(val))
}

func TestSwap_MissingKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	_, err := rc.Swap(context.Background(), "swap:missing", time.Minute, func(old []byte) ([]byte, error) {
		assert.Nil(t, old)
		return []byte("new"), nil
	})
	assert.NoError(t, err)
}

func TestSwap_ConcurrentWritersConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	seed(t, rc, "swap:race", "0", time.Minute)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var slowErr error
	go func() {
		defer wg.Done()
		_, slowErr = rc.Swap(ctx, "swap:race", time.Minute, func([]byte) ([]byte, error) {
			<-release
			return []byte("slow"), nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	_, err := rc.Swap(ctx, "swap:race", time.Minute, func([]byte) ([]byte, error) { return []byte("fast"), nil })
	require.NoError(t, err)
	close(release)
	wg.Wait()

	assert.ErrorIs(t, slowErr, cache.ErrConflict)
	val, _, err := rc.Get(ctx, "swap:race")
	require.NoError(t, err)
	assert.Equal(t, "fast", string(val))
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("test-" + uuid.NewString()[:8])

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("expiry-" + uuid.NewString()[:8])

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestJobKey(t *testing.T) {
	assert.Equal(t, "job:22222222-2222-2222-2222-222222222222", cache.JobKey("22222222-2222-2222-2222-222222222222"))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:10.0.0.7", cache.RateLimitKey("10.0.0.7"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	assert.NotEqual(t, cache.JobKey("x"), cache.RateLimitKey("x"))
}
