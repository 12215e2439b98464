package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/api/response"
	"github.com/kiranshivaraju/lecturelab/internal/cache"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 30
	window                   = 60 * time.Second
	// maxTrackedClients bounds the in-process limiter map.
	maxTrackedClients = 10000
)

// Counter is the slice of cache.Cache the limiter needs.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimit caps submissions per client IP. With a Counter it uses a fixed
// one-minute window shared through Redis; without one it falls back to an
// in-process token bucket per client. Counter errors let the request through.
//
// In-process buckets idle for a full window are refilled, so they are swept
// once per window. At most maxTrackedClients are kept; past that, unknown
// clients get a fresh bucket that is not remembered.
type RateLimit struct {
	counter        Counter
	requestsPerMin int
	maxClients     int
	now            func() time.Time

	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit creates a RateLimit. counter may be nil.
func NewRateLimit(counter Counter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		counter:        counter,
		requestsPerMin: requestsPerMin,
		maxClients:     maxTrackedClients,
		now:            time.Now,
		limiters:       make(map[string]*clientLimiter),
	}
}

// Limit applies rate limiting keyed by the client address.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientIP(r)

		allowed, remaining := rl.allow(r.Context(), client)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(window).Unix()))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) allow(ctx context.Context, client string) (bool, int) {
	if rl.counter != nil {
		count, err := rl.counter.IncrWithExpiry(ctx, cache.RateLimitKey(client), window)
		if err != nil {
			// fail open
			slog.Warn("rate limit counter unavailable", "error", err)
			return true, rl.requestsPerMin
		}
		return count <= int64(rl.requestsPerMin), max(0, rl.requestsPerMin-int(count))
	}

	now := rl.now()
	lim := rl.limiter(client, now)
	ok := lim.AllowN(now, 1)
	return ok, max(0, int(lim.TokensAt(now)))
}

func (rl *RateLimit) limiter(client string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= window {
		rl.sweep(now)
	}
	if cl, ok := rl.limiters[client]; ok {
		cl.lastSeen = now
		return cl.lim
	}

	lim := rate.NewLimiter(rate.Every(window/time.Duration(rl.requestsPerMin)), rl.requestsPerMin)
	if len(rl.limiters) >= rl.maxClients {
		rl.sweep(now)
		if len(rl.limiters) >= rl.maxClients {
			return lim
		}
	}
	rl.limiters[client] = &clientLimiter{lim: lim, lastSeen: now}
	return lim
}

// sweep drops buckets idle for at least a window. Callers hold rl.mu.
func (rl *RateLimit) sweep(now time.Time) {
	for client, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) >= window {
			delete(rl.limiters, client)
		}
	}
	rl.lastSweep = now
}

// ClientIP returns the host part of RemoteAddr. Proxy headers are resolved
// upstream by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
