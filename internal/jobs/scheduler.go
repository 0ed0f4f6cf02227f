// Package jobs runs the periodic analytics passes on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned when running a job that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// ErrAlreadyRunning is returned by Run when the job is in progress in this process or,
// with a Locker, on another replica.
var ErrAlreadyRunning = errors.New("job already running")

// JobFunc is the function signature for jobs.
type JobFunc func(ctx context.Context) error

// Locker takes a cluster-wide lock for a job run.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// Job represents a scheduled job.
type Job struct {
	Name     string
	Schedule string
	Func     JobFunc
	EntryID  cron.EntryID
	LastRun  time.Time
	LastErr  error
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	running map[string]bool
	locker  Locker
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewScheduler creates a job scheduler whose schedules have six fields, seconds first.
// locker may be nil; a zero timeout means 30 minutes.
func NewScheduler(logger *slog.Logger, locker Locker, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		jobs:    make(map[string]*Job),
		running: make(map[string]bool),
		locker:  locker,
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a job. An empty schedule registers it for on-demand runs only.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s registered twice", name)
	}
	job := &Job{
		Name:     name,
		Schedule: schedule,
		Func:     fn,
	}

	if schedule != "" {
		entryID, err := s.cron.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_ = s.Run(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("job %s: invalid schedule %q: %w", name, schedule, err)
		}
		job.EntryID = entryID
	}
	s.jobs[name] = job

	s.logger.Info("job registered", "name", name, "schedule", schedule)
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Run executes a job synchronously. It returns ErrAlreadyRunning without running the job
// when a run is already in progress here or holds the cluster lock.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.running[name] {
		s.mu.Unlock()
		s.logger.Warn("job skipped, previous run still in progress", "name", name)
		return ErrAlreadyRunning
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, name)
		if err != nil {
			s.logger.Error("job lock failed", "name", name, "error", err)
			return fmt.Errorf("locking job %s: %w", name, err)
		}
		if !acquired {
			s.logger.Info("job skipped, running on another replica", "name", name)
			return ErrAlreadyRunning
		}
		defer release()
	}

	start := time.Now()
	s.logger.Info("job started", "name", name)

	err := job.Func(ctx)

	duration := time.Since(start)
	s.mu.Lock()
	job.LastRun, job.LastErr = start, err
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("job failed", "name", name, "duration", duration, "error", err)
		return err
	}
	s.logger.Info("job completed", "name", name, "duration", duration)
	return nil
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}
