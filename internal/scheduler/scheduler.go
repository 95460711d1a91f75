// Package scheduler runs internetradio's recurring maintenance jobs on cron
// schedules.
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

	"github.com/ABHIRAMSHIBU/internetradio/internal/observability"
)

var (
	// ErrUnknownJob is returned by Trigger for unregistered job names.
	ErrUnknownJob = errors.New("unknown job")
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("job already registered")
)

// JobFunc is the work a job performs. The context is cancelled when the
// scheduler stops.
type JobFunc func(ctx context.Context) error

// JobStatus is a point-in-time view of a registered job.
type JobStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitzero"`
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entryID  cron.EntryID

	mu       sync.Mutex // serializes runs
	statusMu sync.Mutex
	status   JobStatus
}

// Scheduler manages job scheduling using cron expressions. Standard
// five-field expressions and descriptors such as "@every 5m" are accepted.
type Scheduler struct {
	mu     sync.RWMutex
	cron   *cron.Cron
	parser cron.Parser
	jobs   map[string]*job
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is a schedule the scheduler accepts.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		parser: parser,
		jobs:   make(map[string]*job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a named job. An empty schedule registers a job that only
// runs through Trigger.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{name: name, schedule: schedule, fn: fn}
	j.status = JobStatus{Name: name, Schedule: schedule}

	if schedule != "" {
		sched, err := s.parser.Parse(schedule)
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
		}
		j.entryID = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(j) }))
	}
	s.jobs[name] = j

	s.logger.Debug("job registered",
		slog.String("job", name),
		slog.String("schedule", schedule))
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Status())))

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Trigger runs a job immediately and returns its error. A run already in
// progress is waited for first.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) execute(j *job) {
	s.wg.Add(1)
	defer s.wg.Done()
	_ = s.run(s.ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return err
	}

	logger := s.logger.With(slog.String("job", j.name))
	start := time.Now()
	err := j.fn(observability.ContextWithLogger(ctx, logger))
	elapsed := time.Since(start)

	j.statusMu.Lock()
	j.status.Runs++
	j.status.LastRun = start
	j.status.LastDuration = elapsed
	j.status.LastError = ""
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
	}
	j.statusMu.Unlock()

	if err != nil {
		logger.Warn("job failed",
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return err
	}
	logger.Debug("job completed", slog.Duration("duration", elapsed))
	return nil
}

// Status returns every job's status, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.statusMu.Lock()
		st := j.status
		j.statusMu.Unlock()
		if j.entryID != 0 {
			st.NextRun = s.cron.Entry(j.entryID).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
