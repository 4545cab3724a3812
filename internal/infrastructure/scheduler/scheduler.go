// Package scheduler runs background jobs on fixed intervals. The worker uses
// it to drive the outbox relay.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNilJob       = errors.New("scheduler: nil job")
	ErrNilSchedule  = errors.New("scheduler: nil schedule")
	ErrDuplicateJob = errors.New("scheduler: job already registered")
	ErrUnknownJob   = errors.New("scheduler: unknown job")
	ErrRunning      = errors.New("scheduler: already running")
	ErrNotRunning   = errors.New("scheduler: not running")
)

// Job is a unit of background work. Run receives a context that ends when
// the scheduler stops.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule picks the next start time after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// MinInterval is the shortest interval Every accepts.
const MinInterval = 100 * time.Millisecond

// Interval repeats a job a fixed time after each start.
type Interval time.Duration

// Every returns an Interval of d, raised to MinInterval if shorter.
func Every(d time.Duration) Interval {
	return Interval(max(d, MinInterval))
}

func (i Interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }
func (i Interval) String() string             { return "@every " + time.Duration(i).String() }

// Result describes one run of a job.
type Result struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Err      error
}

func (r *Result) OK() bool { return r.Err == nil }

// JobInfo is the registry view of a job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	NextRun     time.Time
	Runs        int64
	Failures    int64
	Last        *Result
}

type entry struct {
	job      Job
	schedule Schedule
	disabled bool
	busy     bool
	next     time.Time
	runs     int64
	failures int64
	last     *Result
}

type Config struct {
	Logger *slog.Logger
	// Tick is how often due jobs are checked. Default 1s.
	Tick time.Duration
}

// Scheduler starts due jobs on every tick. A job never overlaps a scheduled
// run of itself.
type Scheduler struct {
	log  *slog.Logger
	tick time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	stop    context.CancelFunc
	runs    sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Scheduler{
		log:     cfg.Logger.With("component", "scheduler"),
		tick:    cfg.Tick,
		entries: make(map[string]*entry),
	}
}

// Register adds job; its first run is one schedule step from now.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	s.entries[name] = &entry{job: job, schedule: schedule, next: schedule.Next(time.Now())}
	s.log.Info("job registered", "job", name, "schedule", schedule.String(), "description", job.Description())
	return nil
}

// Disable stops scheduled runs of a job. RunNow still works.
func (s *Scheduler) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	e.disabled = true
	return nil
}

// Start runs the tick loop until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrRunning
	}
	ctx, s.stop = context.WithCancel(ctx)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		t := time.NewTicker(s.tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.startDue(ctx, now)
			}
		}
	}()
	s.log.Info("scheduler started", "jobs", len(s.entries), "tick", s.tick.String())
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stop()
	s.stop = nil
	s.mu.Unlock()

	s.runs.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Scheduler) startDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.disabled || e.busy || now.Before(e.next) {
			continue
		}
		e.busy = true
		e.next = e.schedule.Next(now)
		s.runs.Add(1)
		go func(e *entry) {
			defer s.runs.Done()
			s.run(ctx, e)
			s.mu.Lock()
			e.busy = false
			s.mu.Unlock()
		}(e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) *Result {
	r := &Result{Job: e.job.Name(), Started: time.Now()}
	r.Err = e.job.Run(ctx)
	r.Duration = time.Since(r.Started)

	s.mu.Lock()
	e.runs++
	if r.Err != nil {
		e.failures++
	}
	e.last = r
	s.mu.Unlock()

	if r.Err != nil {
		s.log.Error("job failed", "job", r.Job, "duration", r.Duration.String(), "error", r.Err)
	} else {
		s.log.Debug("job completed", "job", r.Job, "duration", r.Duration.String())
	}
	return r
}

// RunNow runs a job on the caller's goroutine, outside its schedule. The
// returned error is the job's.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Result, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	r := s.run(ctx, e)
	return r, r.Err
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Enabled:     !e.disabled,
			NextRun:     e.next,
			Runs:        e.runs,
			Failures:    e.failures,
			Last:        e.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
