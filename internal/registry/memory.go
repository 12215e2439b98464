package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// Memory is an in-process Registry. Records live until the process exits.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, fn func(*models.Job)) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := apply(prev, fn, m.now())
	if err != nil {
		return nil, err
	}
	m.jobs[id] = next
	return next.Clone(), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of stored jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

var _ Registry = (*Memory)(nil)
