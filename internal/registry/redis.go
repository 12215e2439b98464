package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/cache"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

const maxSwapAttempts = 5

// Redis stores each job as a JSON document under job:<id>. Records expire
// after ttl so abandoned jobs do not accumulate.
type Redis struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewRedis(c cache.Cache, ttl time.Duration) *Redis {
	return &Redis{
		cache: c,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) Create(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	ok, err := r.cache.SetNX(ctx, cache.JobKey(job.ID), data, r.ttl)
	if err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*models.Job, error) {
	data, found, err := r.cache.Get(ctx, cache.JobKey(id))
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (r *Redis) Update(ctx context.Context, id string, fn func(*models.Job)) (*models.Job, error) {
	var updated *models.Job
	swap := func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, ErrNotFound
		}
		var prev models.Job
		if err := json.Unmarshal(old, &prev); err != nil {
			return nil, fmt.Errorf("decoding job %s: %w", id, err)
		}
		next, err := apply(&prev, fn, r.now())
		if err != nil {
			return nil, err
		}
		updated = next
		return json.Marshal(next)
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		_, err := r.cache.Swap(ctx, cache.JobKey(id), r.ttl, swap)
		if errors.Is(err, cache.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("updating job %s: %w", id, cache.ErrConflict)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}

var _ Registry = (*Redis)(nil)
