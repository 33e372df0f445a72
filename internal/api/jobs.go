package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether s is terminal.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// DefaultMaxJobs bounds the job store when no limit is configured.
const DefaultMaxJobs = 1000

// JobRequest is the body of POST /jobs: a batch of documents converted in
// one direction.
type JobRequest struct {
	Direction string            `json:"direction"`
	Documents []string          `json:"documents"`
	Options   map[string]string `json:"options,omitempty"`
}

// JobResult is the outcome of one document of a job.
type JobResult struct {
	Index  int            `json:"index"`
	Output string         `json:"output,omitempty"`
	Report *report.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Job is an asynchronous batch conversion.
type Job struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	Direction   string      `json:"direction"`
	Done        int         `json:"done"`
	Total       int         `json:"total"`
	Progress    int         `json:"progress"` // 0-100
	Succeeded   int         `json:"succeeded"`
	Results     []JobResult `json:"results,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
	CompletedAt string      `json:"completed_at,omitempty"`

	created time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	batch   *pipeline.Batch
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

// JobStore keeps jobs in memory. When full, the oldest finished job is
// evicted to make room; a store full of running jobs rejects new ones.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	max  int
}

// NewJobStore creates a store holding at most max jobs. A max of zero or
// less means DefaultMaxJobs.
func NewJobStore(max int) *JobStore {
	if max <= 0 {
		max = DefaultMaxJobs
	}
	return &JobStore{jobs: make(map[string]*Job), max: max}
}

// Create adds a pending job for batch.
func (s *JobStore) Create(direction string, batch *pipeline.Batch, total int) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.max && !s.evictLocked() {
		return nil, errors.NewLimit(-1, "job store is full (%d jobs running)", s.max)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Direction: direction,
		Total:     total,
		CreatedAt: ts.UTC().Format(time.RFC3339),
		UpdatedAt: ts.UTC().Format(time.RFC3339),
		created:   ts,
		ctx:       ctx,
		cancel:    cancel,
		batch:     batch,
	}
	s.jobs[job.ID] = job
	return job, nil
}

// evictLocked removes the oldest finished job.
func (s *JobStore) evictLocked() bool {
	var oldest *Job
	for _, j := range s.jobs {
		if j.Status.Finished() && (oldest == nil || j.created.Before(oldest.created)) {
			oldest = j
		}
	}
	if oldest == nil {
		return false
	}
	delete(s.jobs, oldest.ID)
	return true
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// snapshot copies the exported state of j.
func (j *Job) snapshot() Job {
	c := *j
	c.Results = append([]JobResult(nil), j.Results...)
	c.ctx, c.cancel, c.batch = nil, nil, nil
	return c
}

// List returns snapshots of every job, oldest first, without results.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		c := j.snapshot()
		c.Results = nil
		jobs = append(jobs, c)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].created.Before(jobs[b].created) })
	return jobs
}

// update applies fn to the job under the store lock. Finished jobs are
// not changed.
func (s *JobStore) update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Finished() {
		return false
	}
	fn(job)
	job.UpdatedAt = now()
	if job.Status.Finished() {
		job.CompletedAt = job.UpdatedAt
	}
	return true
}

// Cancel stops a pending or running job. Documents already converted keep
// their results.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return errors.NewNotFound("job", id)
	}
	if job.Status.Finished() {
		return errors.NewValidation("status", fmt.Sprintf("job cannot be cancelled (status: %s)", job.Status))
	}
	job.batch.Cancel()
	job.cancel()
	job.Status = JobStatusCancelled
	job.UpdatedAt = now()
	job.CompletedAt = job.UpdatedAt
	return nil
}

// Delete removes a job, cancelling it first when it is still running.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return errors.NewNotFound("job", id)
	}
	if !job.Status.Finished() {
		job.batch.Cancel()
		job.cancel()
	}
	delete(s.jobs, id)
	return nil
}

// CancelAll cancels every unfinished job.
func (s *JobStore) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if !job.Status.Finished() {
			job.batch.Cancel()
			job.cancel()
		}
	}
}

// progressInterval is how often a running job publishes its progress.
var progressInterval = 250 * time.Millisecond

// runJob converts inputs in the background, publishing progress to the
// hub until the batch finishes.
func (s *Server) runJob(job *Job, inputs [][]byte) {
	id, batch, ctx := job.ID, job.batch, job.ctx
	s.jobs.update(id, func(j *Job) { j.Status = JobStatusRunning })

	go func() {
		stop := make(chan struct{})
		defer job.cancel()
		go s.publishProgress(id, batch, stop)

		items := batch.Run(ctx, inputs)
		close(stop)

		results := make([]JobResult, len(items))
		succeeded := 0
		var firstErr error
		for i, it := range items {
			r := JobResult{Index: it.Index}
			if it.Result != nil {
				r.Report = it.Result.Report
				r.Output = string(it.Result.Output)
			}
			if it.Err != nil {
				r.Error = it.Err.Error()
				if firstErr == nil {
					firstErr = it.Err
				}
			} else {
				succeeded++
			}
			results[i] = r
		}

		done, total := batch.Progress()
		status := JobStatusCompleted
		if len(items) > 0 && succeeded == 0 {
			status = JobStatusFailed
		}
		s.jobs.update(id, func(j *Job) {
			j.Status = status
			j.Done, j.Total, j.Progress = done, total, percent(done, total)
			j.Succeeded = succeeded
			j.Results = results
			if firstErr != nil {
				j.Error = fmt.Sprintf("%d of %d documents failed, first: %v", len(items)-succeeded, len(items), firstErr)
			}
		})
		// A cancelled job keeps its cancelled status; attach what finished.
		s.jobs.attach(id, results, succeeded, done)

		final, _ := s.jobs.Get(id)
		logging.Info("job finished", "job_id", id, "status", final.Status, "succeeded", succeeded, "total", total)
		msgType := MessageComplete
		if final.Status != JobStatusCompleted {
			msgType = MessageError
		}
		s.hub.Broadcast(ProgressMessage{
			Type:      msgType,
			JobID:     id,
			Operation: final.Direction,
			Done:      done,
			Total:     total,
			Progress:  percent(done, total),
			Message:   string(final.Status),
			Data:      map[string]any{"succeeded": succeeded},
		})
	}()
}

// attach stores the results of a cancelled job.
func (s *JobStore) attach(id string, results []JobResult, succeeded, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobStatusCancelled || job.Results != nil {
		return
	}
	job.Results = results
	job.Succeeded = succeeded
	job.Done = done
	job.Progress = percent(done, job.Total)
}

// publishProgress broadcasts the batch's progress whenever it changes.
func (s *Server) publishProgress(id string, batch *pipeline.Batch, stop <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			done, total := batch.Progress()
			if done == last {
				continue
			}
			last = done
			if !s.jobs.update(id, func(j *Job) { j.Done, j.Progress = done, percent(done, total) }) {
				return
			}
			s.hub.Broadcast(ProgressMessage{
				Type:      MessageProgress,
				JobID:     id,
				Operation: string(batch.Direction()),
				Done:      done,
				Total:     total,
				Progress:  percent(done, total),
			})
		}
	}
}
