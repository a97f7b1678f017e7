package agent

import (
	"sync"
	"time"
)

type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// maxJobs bounds the command history kept in memory.
const maxJobs = 64

// Job records the outcome of one command.
type Job struct {
	ID        string
	Type      string
	Status    JobStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobManager keeps a bounded history of applied commands. Commands run
// synchronously on the tick goroutine; the history may be read from
// anywhere.
type JobManager struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	last  *Job
	now   func() time.Time
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Run executes action and records its result under id. A command id seen
// before is not run again and its earlier job is returned.
func (jm *JobManager) Run(id, jobType string, action func() error) Job {
	jm.mu.Lock()
	if prev, ok := jm.jobs[id]; ok && id != "" {
		defer jm.mu.Unlock()
		return *prev
	}
	job := &Job{
		ID:        id,
		Type:      jobType,
		Status:    JobStatusRunning,
		CreatedAt: jm.now(),
	}
	job.UpdatedAt = job.CreatedAt
	jm.mu.Unlock()

	err := action()

	jm.mu.Lock()
	defer jm.mu.Unlock()
	job.UpdatedAt = jm.now()
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusSuccess
	}
	jm.last = job
	if id == "" {
		return *job
	}
	jm.jobs[id] = job
	jm.order = append(jm.order, id)
	if len(jm.order) > maxJobs {
		delete(jm.jobs, jm.order[0])
		jm.order = jm.order[1:]
	}
	return *job
}

func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	job, ok := jm.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// LastJob returns the most recently finished job, if any.
func (jm *JobManager) LastJob() (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	if jm.last == nil {
		return Job{}, false
	}
	return *jm.last, true
}
