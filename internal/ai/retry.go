package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/httpx"
)

// RetryConfig bounds how often and how long one unit invocation is retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// AttemptTimeout bounds each attempt. Zero disables the bound.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the defaults used when nothing is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2.0,
		AttemptTimeout: 120 * time.Second,
	}
}

// Retry runs fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. The last error is returned unchanged so callers can inspect it.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	return retry(ctx, cfg, nil, fn)
}

// retry runs before ahead of every attempt, outside the attempt timeout.
func retry(ctx context.Context, cfg RetryConfig, before func(ctx context.Context) error, fn func(ctx context.Context) error) error {
	backoff := cfg.InitialBackoff
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if before != nil {
			if err := before(ctx); err != nil {
				if lastErr != nil {
					return lastErr
				}
				return err
			}
		}

		lastErr = runAttempt(ctx, cfg.AttemptTimeout, fn)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(lastErr, backoff, cfg.MaxBackoff))
		slog.Warn("provider call retrying",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", lastErr.Error(),
		)

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(actx)
	if err == nil {
		return nil
	}
	// The attempt deadline fired while the caller is still waiting: that is an
	// inference timeout for this unit, whatever the backend reported.
	if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !IsTransient(err) {
		return &ProviderError{
			Backend: backendOf(err),
			Kind:    KindTransient,
			Err:     fmt.Errorf("%w after %s: %w", ErrInferenceTimeout, timeout, err),
		}
	}
	return err
}

func backendOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Backend
	}
	return "unknown"
}
