// Package jobs tracks background discovery and training runs in an
// explicit registry with a defined lifecycle, replacing the bare
// process-global job map this kind of service tends to grow.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind labels what a job runs.
type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindTraining  Kind = "training"
)

// Status is the job lifecycle state. Transitions are monotonic:
// pending -> running -> completed|failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrBadJobState rejects out-of-order lifecycle calls.
var ErrBadJobState = errors.New("job state does not allow this transition")

// ErrJobNotFound is returned for lifecycle calls on unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Job is one tracked run. Result holds the run's outcome value once
// completed; its concrete type depends on Kind.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Key         string     `json:"key,omitempty"` // Correlation key, e.g. the project ID
	Task        string     `json:"task"`
	Status      Status     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j *Job) clone() *Job {
	out := *j
	if j.StartedAt != nil {
		v := *j.StartedAt
		out.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// Registry owns all jobs of one process.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	logger *slog.Logger

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		logger: logger,
		now:    time.Now,
	}
}

// Create registers a new pending job and returns a copy of it. key is
// an optional correlation key for HasActive lookups.
func (r *Registry) Create(kind Kind, key, task string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		Task:      task,
		Status:    StatusPending,
		CreatedAt: r.now(),
	}
	r.jobs[job.ID] = job
	return job.clone()
}

// HasActive reports whether a pending or running job of the given kind
// carries this correlation key.
func (r *Registry) HasActive(kind Kind, key string) bool {
	if key == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.jobs {
		if job.Kind != kind || job.Key != key {
			continue
		}
		if job.Status == StatusPending || job.Status == StatusRunning {
			return true
		}
	}
	return false
}

// Get returns a copy of the job with the given ID.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Start moves a pending job to running.
func (r *Registry) Start(id string) error {
	return r.update(id, func(job *Job) error {
		if job.Status != StatusPending {
			return fmt.Errorf("%w: cannot start %s job %s", ErrBadJobState, job.Status, job.ID)
		}
		now := r.now()
		job.Status = StatusRunning
		job.StartedAt = &now
		return nil
	})
}

// Complete moves a running job to completed with its result.
func (r *Registry) Complete(id string, result any) error {
	return r.update(id, func(job *Job) error {
		if job.Status != StatusRunning {
			return fmt.Errorf("%w: cannot complete %s job %s", ErrBadJobState, job.Status, job.ID)
		}
		now := r.now()
		job.Status = StatusCompleted
		job.Result = result
		job.CompletedAt = &now
		return nil
	})
}

// Fail moves a running job to failed with the cause.
func (r *Registry) Fail(id string, cause error) error {
	return r.update(id, func(job *Job) error {
		if job.Status != StatusRunning {
			return fmt.Errorf("%w: cannot fail %s job %s", ErrBadJobState, job.Status, job.ID)
		}
		now := r.now()
		job.Status = StatusFailed
		if cause != nil {
			job.Error = cause.Error()
		}
		job.CompletedAt = &now
		return nil
	})
}

// Run drives fn through the job lifecycle in a background goroutine.
// A panic inside fn fails the job instead of crashing the process.
func (r *Registry) Run(ctx context.Context, id string, fn func(ctx context.Context) (any, error)) {
	go func() {
		if err := r.Start(id); err != nil {
			r.logger.Error("job start rejected", "job", id, "error", err)
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("job panicked", "job", id, "panic", rec)
				_ = r.Fail(id, fmt.Errorf("panic: %v", rec))
			}
		}()

		result, err := fn(ctx)
		if err != nil {
			r.logger.Warn("job failed", "job", id, "error", err)
			_ = r.Fail(id, err)
			return
		}
		_ = r.Complete(id, result)
	}()
}

func (r *Registry) update(id string, fn func(*Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fn(job)
}
