package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus is the pipeline progress of a job. Failure can be reached from any
// non-terminal status.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusSplitting   JobStatus = "splitting"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusAggregating JobStatus = "aggregating"
	JobStatusSummarizing JobStatus = "summarizing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// JobKind selects the plan a job runs.
type JobKind string

const (
	JobKindTranscription JobKind = "transcription"
	JobKindGrading       JobKind = "grading"
	JobKindEssay         JobKind = "essay"
)

// Job tracks one submitted unit of work. The API returns the id on POST /api/v1/jobs;
// the client polls GET /api/v1/jobs/{id} until status is completed or failed.
type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsDone reports whether the job reached a terminal state.
func (j *Job) IsDone() bool {
	return j.Status.IsTerminal()
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var (
	ErrTerminal      = errors.New("job is in a terminal state")
	ErrInvalidUpdate = errors.New("invalid job update")
)

var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusQueued: {
		JobStatusSplitting: true,
		JobStatusFailed:    true,
	},
	JobStatusSplitting: {
		JobStatusProcessing: true,
		JobStatusFailed:     true,
	},
	JobStatusProcessing: {
		JobStatusAggregating: true,
		JobStatusFailed:      true,
	},
	JobStatusAggregating: {
		JobStatusSummarizing: true,
		JobStatusCompleted:   true,
		JobStatusFailed:      true,
	},
	JobStatusSummarizing: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
	},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

// ValidateTransition checks whether a job may move from one status to another.
// Staying in the same non-terminal status is allowed so progress can advance.
func ValidateTransition(from, to JobStatus) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidUpdate, from)
	}
	if from.IsTerminal() {
		return ErrTerminal
	}
	if from == to || allowed[to] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidUpdate, from, to)
}

// CheckUpdate validates that next is a legal successor of prev.
func CheckUpdate(prev, next *Job) error {
	if err := ValidateTransition(prev.Status, next.Status); err != nil {
		return err
	}
	if next.ID != prev.ID || next.Kind != prev.Kind || !next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidUpdate)
	}
	if next.Progress < prev.Progress {
		return fmt.Errorf("%w: progress decreased from %d to %d", ErrInvalidUpdate, prev.Progress, next.Progress)
	}
	if next.Progress < 0 || next.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidUpdate, next.Progress)
	}
	if (next.Progress == 100) != (next.Status == JobStatusCompleted) {
		return fmt.Errorf("%w: progress 100 is reserved for completed jobs", ErrInvalidUpdate)
	}
	if len(next.Result) > 0 && next.Status != JobStatusCompleted {
		return fmt.Errorf("%w: result set on %s job", ErrInvalidUpdate, next.Status)
	}
	if next.Error != "" && next.Status != JobStatusFailed {
		return fmt.Errorf("%w: error set on %s job", ErrInvalidUpdate, next.Status)
	}
	return nil
}
