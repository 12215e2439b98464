package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// Select probes candidates in order and returns the first that answers.
// When every probe fails the error wraps ErrNoBackendAvailable and joins each attempt.
func Select[B models.Backend](ctx context.Context, candidates []B, probeTimeout time.Duration) (B, error) {
	var zero B
	if len(candidates) == 0 {
		return zero, fmt.Errorf("%w: no candidates configured", ErrNoBackendAvailable)
	}

	attempts := make([]error, 0, len(candidates))
	for _, c := range candidates {
		err := probe(ctx, c, probeTimeout)
		if err == nil {
			slog.Info("ai backend selected", "backend", c.Name(), "skipped", len(attempts))
			return c, nil
		}
		slog.Warn("ai backend probe failed", "backend", c.Name(), "error", err)
		attempts = append(attempts, fmt.Errorf("%s: %w", c.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrNoBackendAvailable, errors.Join(attempts...))
}

func probe(ctx context.Context, b models.Backend, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return b.Probe(ctx)
}
