// Package scheduler runs periodic maintenance jobs: session and spam
// counter sweeps, command reloads and settings flushes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/picowarden/pkg/logger"
)

// Job is one periodic task. Spec is a cron expression ("*/5 * * * *"), a Go
// duration ("2m") or "@every <duration>".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type schedule struct {
	every time.Duration
	cron  string
}

// parseSpec validates spec and returns its schedule.
func parseSpec(spec string) (schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return schedule{}, errors.New("empty schedule")
	}
	durSpec := strings.TrimSpace(strings.TrimPrefix(spec, "@every"))
	if d, err := time.ParseDuration(durSpec); err == nil {
		if d <= 0 {
			return schedule{}, fmt.Errorf("schedule %q: interval must be positive", spec)
		}
		return schedule{every: d}, nil
	}
	if !gronx.New().IsValid(spec) {
		return schedule{}, fmt.Errorf("invalid schedule %q", spec)
	}
	return schedule{cron: spec}, nil
}

func (s schedule) next(after time.Time) (time.Time, error) {
	if s.every > 0 {
		return after.Add(s.every), nil
	}
	return gronx.NextTickAfter(s.cron, after, false)
}

// NextRun returns the first run of spec strictly after the given time.
func NextRun(spec string, after time.Time) (time.Time, error) {
	s, err := parseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return s.next(after)
}

type entry struct {
	job   Job
	sched schedule

	mu      sync.Mutex
	runs    int
	lastErr error
	lastRun time.Time
}

// Status is a snapshot of one job.
type Status struct {
	Name    string
	Spec    string
	Runs    int
	LastRun time.Time
	LastErr error
}

type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Jobs added after Start run from the next Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	sched, err := parseSpec(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name == job.Name {
			return fmt.Errorf("job %s already registered", job.Name)
		}
	}
	s.entries = append(s.entries, &entry{job: job, sched: sched})
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	logger.InfoCF("scheduler", "Scheduler started", map[string]any{"jobs": len(s.entries)})
}

// Stop cancels every job loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.InfoC("scheduler", "Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	for {
		now := time.Now()
		next, err := e.sched.next(now)
		if err != nil {
			logger.ErrorCF("scheduler", "Cannot compute next run", map[string]any{
				"job":   e.job.Name,
				"error": err.Error(),
			})
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	start := time.Now()
	err := safeRun(ctx, e.job.Run)

	e.mu.Lock()
	e.runs++
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	fields := map[string]any{"job": e.job.Name, "duration": time.Since(start).String()}
	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF("scheduler", "Job failed", fields)
	} else {
		logger.DebugCF("scheduler", "Job finished", fields)
	}
	return err
}

// RunNow runs a registered job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *entry
	for _, e := range s.entries {
		if e.job.Name == name {
			target = e
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, target)
}

func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, Status{
			Name:    e.job.Name,
			Spec:    e.job.Spec,
			Runs:    e.runs,
			LastRun: e.lastRun,
			LastErr: e.lastErr,
		})
		e.mu.Unlock()
	}
	return out
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
