// Package scheduler runs named maintenance jobs, such as full-text index
// rebuilds, on cron schedules.
package scheduler

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

// JobFunc is the work a scheduled job performs. ctx is cancelled on Stop.
type JobFunc func(ctx context.Context) error

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
}

var (
	// ErrStopped is returned by Trigger after Stop.
	ErrStopped = errors.New("scheduler is stopped")
	// ErrUnknownJob is returned by Trigger for a name that was never added.
	ErrUnknownJob = errors.New("job is not scheduled")
	// ErrJobRunning is returned by Trigger while the job is still running.
	ErrJobRunning = errors.New("job is already running")
)

type job struct {
	entry    cron.EntryID
	schedule string
	fn       JobFunc
	running  bool
	lastRun  time.Time
	lastErr  error
}

// Scheduler runs jobs on cron schedules. A job never overlaps with itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*job
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates an idle scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: slog.Default(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Add schedules fn under name, replacing an existing job with that name.
// An empty expr registers a manual job that only runs through Trigger.
func (s *Scheduler) Add(name, expr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry cron.EntryID
	if expr != "" {
		var err error
		entry, err = s.cron.AddFunc(expr, func() {
			if s.claim(name) {
				s.run(name)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
	}
	if old, ok := s.jobs[name]; ok && old.entry != 0 {
		s.cron.Remove(old.entry)
	}
	s.jobs[name] = &job{entry: entry, schedule: expr, fn: fn}
	if entry == 0 {
		s.logger.Info("registered manual job", "job", name)
		return nil
	}
	s.logger.Info("scheduled job", "job", name, "schedule", expr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// Remove unschedules a job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		if j.entry != 0 {
			s.cron.Remove(j.entry)
		}
		delete(s.jobs, name)
		s.logger.Info("removed job", "job", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning reports whether the scheduler was started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops scheduling, cancels running jobs and returns a context that is
// done once every job has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// Trigger runs a job now, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownJob)
	}
	if j.running {
		return fmt.Errorf("%q: %w", name, ErrJobRunning)
	}
	j.running = true
	s.wg.Add(1)
	go s.run(name)
	return nil
}

// claim marks a job as running. It fails when the job is gone, already
// running or the scheduler is stopped.
func (s *Scheduler) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok || s.stopped || j.running {
		return false
	}
	j.running = true
	s.wg.Add(1)
	return true
}

// run executes a claimed job. The caller has already called wg.Add(1).
func (s *Scheduler) run(name string) {
	defer s.wg.Done()

	s.mu.RLock()
	j := s.jobs[name]
	s.mu.RUnlock()
	if j == nil {
		return
	}

	s.logger.Info("job started", "job", name)
	start := time.Now()
	err := j.fn(s.ctx)

	s.mu.Lock()
	j.running = false
	j.lastErr = err
	if err == nil {
		j.lastRun = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "duration", time.Since(start))
}

// Status returns every job's status, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		st := JobStatus{
			Name:     name,
			Schedule: j.schedule,
			Running:  j.running,
			LastRun:  j.lastRun,
		}
		if j.entry != 0 {
			st.NextRun = s.cron.Entry(j.entry).Next
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// ValidateCronExpr checks a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
