// Package pipeline runs jobs through the split, process, aggregate and
// summarize stages. Each job is owned by one goroutine from submission until
// it reaches a terminal status.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/artifact"
	"github.com/kiranshivaraju/lecturelab/internal/metrics"
	"github.com/kiranshivaraju/lecturelab/internal/registry"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// Plan describes one kind of job. R is the per-unit result type.
type Plan[R any] interface {
	Kind() models.JobKind
	Splitter() splitter.Splitter
	// Prepare selects the backends the job will use. An error fails the job
	// before any unit is processed.
	Prepare(ctx context.Context) error
	// Backend names the pacing key for unit invocations. Valid after Prepare.
	Backend() string
	Process(ctx context.Context, u splitter.Unit) (R, error)
	// Placeholder stands in for a unit whose processing failed.
	Placeholder(u splitter.Unit, err error) R
	Aggregate(ctx context.Context, results []R) (Outcome, error)
	ProgressCap() int
}

// Outcome is the aggregated result of a job.
type Outcome struct {
	Result any
	// Secondary, when set, derives the final result from Result. It always
	// returns the value to store; a non-nil error is logged and the job still
	// completes.
	Secondary func(ctx context.Context, inv Invoker) (any, error)
}

// Invoker runs one provider call with pacing, retries and the per-attempt timeout.
type Invoker interface {
	Invoke(ctx context.Context, backend string, fn func(ctx context.Context) error) error
}

// Options configures an Engine.
type Options struct {
	Registry registry.Registry
	Store    *artifact.Store
	Pacer    *ai.Pacer
	Metrics  *metrics.Metrics
	Retry    ai.RetryConfig
}

// Engine owns job goroutines.
type Engine struct {
	registry registry.Registry
	store    *artifact.Store
	pacer    *ai.Pacer
	metrics  *metrics.Metrics
	retry    ai.RetryConfig

	wg    sync.WaitGroup
	newID func() string
	now   func() time.Time
}

func NewEngine(opts Options) *Engine {
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ai.NewPacer(0)
	}
	return &Engine{
		registry: opts.Registry,
		store:    opts.Store,
		pacer:    pacer,
		metrics:  opts.Metrics,
		retry:    opts.Retry,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until every submitted job has reached a terminal status.
func (e *Engine) Wait() { e.wg.Wait() }

// WaitTimeout waits for running jobs up to d and reports whether they all finished.
func (e *Engine) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Invoke runs fn under the retry policy, taking the backend's pacing slot
// before every attempt.
func (e *Engine) Invoke(ctx context.Context, backend string, fn func(ctx context.Context) error) error {
	return e.pacer.Retry(ctx, backend, e.retry, fn)
}

// Submit records a queued job and starts its goroutine. The sources belong to
// the job from here on and are deleted when it finishes.
func Submit[R any](ctx context.Context, e *Engine, plan Plan[R], sources []artifact.Artifact) (*models.Job, error) {
	now := e.now()
	job := &models.Job{
		ID:        e.newID(),
		Kind:      plan.Kind(),
		Status:    models.JobStatusQueued,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.registry.Create(ctx, job); err != nil {
		e.deleteSources(job.ID, sources)
		return nil, fmt.Errorf("creating job: %w", err)
	}
	e.metrics.JobSubmitted(string(job.Kind))
	slog.Info("job submitted", "job_id", job.ID, "kind", job.Kind, "sources", len(sources))

	e.wg.Add(1)
	go run(e, job.ID, plan, sources)
	return job, nil
}

// run drives one job to a terminal status. It recovers from panics and always
// marks the job completed or failed.
func run[R any](e *Engine, jobID string, plan Plan[R], sources []artifact.Artifact) {
	ctx := context.Background()
	kind := string(plan.Kind())
	log := slog.With("job_id", jobID, "kind", kind)

	defer e.wg.Done()
	defer e.deleteSources(jobID, sources)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in job", "error", r, "stack", string(debug.Stack()))
			e.fail(ctx, jobID, kind, fmt.Errorf("internal error: %v", r))
		}
	}()

	// splitting
	stageStart := time.Now()
	if !e.update(ctx, jobID, func(j *models.Job) {
		j.Status = models.JobStatusSplitting
		j.Message = "splitting input"
	}) {
		return
	}
	ws, err := e.store.CreateWorkspace(jobID)
	if err != nil {
		e.fail(ctx, jobID, kind, fmt.Errorf("creating workspace: %w", err))
		return
	}
	defer func() {
		if err := e.store.DeleteWorkspace(ws); err != nil {
			log.Warn("deleting workspace failed", "error", err)
		}
	}()

	units, err := plan.Splitter().Split(ctx, ws, sources)
	if err != nil {
		log.Error("split failed", "stage", "splitting", "error", err)
		e.fail(ctx, jobID, kind, err)
		return
	}
	if len(units) == 0 {
		e.fail(ctx, jobID, kind, splitter.ErrNoUnits)
		return
	}
	e.metrics.ObserveStage(kind, "splitting", time.Since(stageStart))

	if err := plan.Prepare(ctx); err != nil {
		log.Error("backend selection failed", "error", err)
		e.fail(ctx, jobID, kind, err)
		return
	}
	backend := plan.Backend()
	log = log.With("backend", backend)

	// processing
	stageStart = time.Now()
	total := len(units)
	if !e.update(ctx, jobID, func(j *models.Job) {
		j.Status = models.JobStatusProcessing
		j.Message = fmt.Sprintf("processing %d units with %s", total, backend)
	}) {
		return
	}

	results := make([]R, total)
	failed := 0
	for i, u := range units {
		var out R
		err := e.Invoke(ctx, backend, func(actx context.Context) error {
			r, err := plan.Process(actx, u)
			if err != nil {
				return err
			}
			out = r
			return nil
		})
		if err != nil {
			failed++
			log.Warn("unit failed", "unit", u.Name, "index", u.Index, "error", err)
			out = plan.Placeholder(u, err)
		}
		results[i] = out
		e.metrics.UnitProcessed(kind, err != nil)

		progress := min(plan.ProgressCap(), 99, (i+1)*100/total)
		if !e.update(ctx, jobID, func(j *models.Job) {
			j.Progress = max(j.Progress, progress)
			j.Message = fmt.Sprintf("processed %d of %d units", i+1, total)
		}) {
			return
		}
	}
	e.metrics.ObserveStage(kind, "processing", time.Since(stageStart))

	// aggregating
	stageStart = time.Now()
	if !e.update(ctx, jobID, func(j *models.Job) {
		j.Status = models.JobStatusAggregating
		j.Message = "aggregating results"
	}) {
		return
	}
	outcome, err := plan.Aggregate(ctx, results)
	if err != nil {
		log.Error("aggregation failed", "stage", "aggregating", "error", err)
		e.fail(ctx, jobID, kind, fmt.Errorf("aggregating results: %w", err))
		return
	}
	e.metrics.ObserveStage(kind, "aggregating", time.Since(stageStart))

	final := outcome.Result
	if outcome.Secondary != nil {
		stageStart = time.Now()
		if !e.update(ctx, jobID, func(j *models.Job) {
			j.Status = models.JobStatusSummarizing
			j.Message = "summarizing"
		}) {
			return
		}
		res, err := outcome.Secondary(ctx, e)
		if err != nil {
			log.Warn("secondary transform failed", "stage", "summarizing", "error", err)
		}
		if res != nil {
			final = res
		}
		e.metrics.ObserveStage(kind, "summarizing", time.Since(stageStart))
	}

	payload, err := json.Marshal(final)
	if err != nil {
		e.fail(ctx, jobID, kind, fmt.Errorf("encoding result: %w", err))
		return
	}
	if !e.update(ctx, jobID, func(j *models.Job) {
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.Result = payload
		j.Message = fmt.Sprintf("completed: %d units, %d failed", total, failed)
	}) {
		return
	}
	e.metrics.JobFinished(kind, string(models.JobStatusCompleted))
	log.Info("job completed", "units", total, "failed_units", failed)
}

// update applies fn to the job record and reports whether the job may go on.
// A rejected update means the record is terminal or the registry is
// unreachable; either way the goroutine stops driving the job.
func (e *Engine) update(ctx context.Context, jobID string, fn func(*models.Job)) bool {
	if _, err := e.registry.Update(ctx, jobID, fn); err != nil {
		slog.Error("job update rejected", "job_id", jobID, "error", err)
		return false
	}
	return true
}

func (e *Engine) fail(ctx context.Context, jobID, kind string, cause error) {
	_, err := e.registry.Update(ctx, jobID, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.Error = cause.Error()
		j.Message = "failed"
	})
	if err != nil {
		if !errors.Is(err, models.ErrTerminal) {
			slog.Error("marking job failed", "job_id", jobID, "error", err)
		}
		return
	}
	e.metrics.JobFinished(kind, string(models.JobStatusFailed))
}

func (e *Engine) deleteSources(jobID string, sources []artifact.Artifact) {
	for _, src := range sources {
		if err := e.store.Delete(src); err != nil {
			slog.Warn("deleting source artifact failed", "job_id", jobID, "path", src.Path, "error", err)
		}
	}
}

var _ Invoker = (*Engine)(nil)
