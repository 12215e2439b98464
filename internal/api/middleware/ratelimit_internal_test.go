package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedRateLimit(perMin, maxClients int) (*RateLimit, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimit(nil, perMin)
	rl.now = clock.Now
	rl.maxClients = maxClients
	return rl, clock
}

func tracked(rl *RateLimit) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func TestRateLimit_SpoofedClientsStayBounded(t *testing.T) {
	rl, _ := newClockedRateLimit(5, 100)
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		ok, _ := rl.allow(ctx, fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		assert.True(t, ok)
	}
	assert.Equal(t, 100, tracked(rl))
}

func TestRateLimit_IdleClientsAreSwept(t *testing.T) {
	rl, clock := newClockedRateLimit(5, 1000)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rl.allow(ctx, fmt.Sprintf("10.0.0.%d", i))
	}
	require.Equal(t, 50, tracked(rl))

	clock.Advance(30 * time.Second)
	rl.allow(ctx, "10.0.0.1")
	assert.Equal(t, 50, tracked(rl), "nothing is idle for a full window yet")

	clock.Advance(45 * time.Second)
	rl.allow(ctx, "10.0.1.1")
	assert.Equal(t, 2, tracked(rl), "only clients seen within the window survive")
}

func TestRateLimit_SweptClientStartsFromFullBucket(t *testing.T) {
	rl, clock := newClockedRateLimit(2, 1000)
	ctx := context.Background()

	ok, _ := rl.allow(ctx, "10.0.0.1")
	require.True(t, ok)
	ok, _ = rl.allow(ctx, "10.0.0.1")
	require.True(t, ok)

	clock.Advance(window + time.Second)
	for i := 0; i < 10; i++ {
		rl.allow(ctx, fmt.Sprintf("10.0.2.%d", i))
	}
	ok, _ = rl.allow(ctx, "10.0.0.1")
	assert.True(t, ok, "a swept client starts from a full bucket")
	ok, _ = rl.allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = rl.allow(ctx, "10.0.0.1")
	assert.False(t, ok, "the limit still applies after the sweep")
}

func TestRateLimit_FullMapSweepsBeforeRefusingToTrack(t *testing.T) {
	rl, clock := newClockedRateLimit(1, 3)
	ctx := context.Background()

	rl.allow(ctx, "a")
	clock.Advance(30 * time.Second)
	rl.allow(ctx, "b")
	clock.Advance(31 * time.Second)
	rl.allow(ctx, "c")
	rl.allow(ctx, "d")
	require.Equal(t, 3, tracked(rl), "a was swept on schedule")

	// The map is full before the next scheduled sweep; b has been idle a window.
	clock.Advance(29 * time.Second)
	rl.allow(ctx, "e")
	assert.Equal(t, 3, tracked(rl))
	ok, _ := rl.allow(ctx, "e")
	assert.False(t, ok, "e took b's place and is limited")

	// Nothing idle: a new client is served but not remembered.
	ok, _ = rl.allow(ctx, "f")
	assert.True(t, ok)
	ok, _ = rl.allow(ctx, "f")
	assert.True(t, ok)
	assert.Equal(t, 3, tracked(rl))
}
