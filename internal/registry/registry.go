// Package registry stores job records. A job is written by its own pipeline
// goroutine and read by status polls.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
)

// Registry is the job store contract shared by every backend.
type Registry interface {
	// Create stores a new job record.
	Create(ctx context.Context, job *models.Job) error
	// Get returns a copy of the job or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Job, error)
	// Update applies fn to a copy of the stored job, validates the result with
	// models.CheckUpdate and stores it. Mutations of terminal jobs return models.ErrTerminal.
	Update(ctx context.Context, id string, fn func(*models.Job)) (*models.Job, error)
	Ping(ctx context.Context) error
}

// apply runs fn against a copy of prev and validates the transition.
func apply(prev *models.Job, fn func(*models.Job), now time.Time) (*models.Job, error) {
	if prev.IsDone() {
		return nil, models.ErrTerminal
	}
	next := prev.Clone()
	fn(next)
	if err := models.CheckUpdate(prev, next); err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	if next.IsDone() && next.CompletedAt == nil {
		t := now
		next.CompletedAt = &t
	}
	return next, nil
}
