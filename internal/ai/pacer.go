package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces consecutive calls to the same backend by a fixed interval.
// Limiters are shared by every job using that backend.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewPacer returns a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *Pacer) limiter(backend string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[backend]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[backend] = l
	}
	return l
}

// Wait blocks until backend may be called again or ctx is done.
func (p *Pacer) Wait(ctx context.Context, backend string) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}
	return p.limiter(backend).Wait(ctx)
}

// Retry is Retry with every attempt, first and retried alike, paced on backend.
func (p *Pacer) Retry(ctx context.Context, backend string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	return retry(ctx, cfg, func(ctx context.Context) error {
		if err := p.Wait(ctx, backend); err != nil {
			return fmt.Errorf("waiting for %s: %w", backend, err)
		}
		return nil
	}, fn)
}
