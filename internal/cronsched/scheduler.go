package cronsched

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/types"
)

// TaskDispatchFunc runs a SingleTask-targeted CronJob's payload through C6.
type TaskDispatchFunc func(cfg types.TaskConfig, runID string)

// DagDispatchFunc builds and runs a Dag-targeted CronJob's payload through
// C9 (the builder + executor).
type DagDispatchFunc func(payload types.CronDagPayload, runID string)

// TemplateDispatchFunc renders a Template-targeted CronJob's payload and
// runs the result through C9/C10.
type TemplateDispatchFunc func(payload types.CronTemplatePayload, runID string)

// job is the scheduler's internal bookkeeping record for one registered
// CronJob: the parsed schedule plus the public CronJob fields.
type job struct {
	cfg      types.CronJob
	schedule *Schedule
}

// Scheduler is the single dispatcher loop described in spec §4.6. One
// goroutine owns the loop; Add/Remove/Stop merely mutate jobs and wake it.
type Scheduler struct {
	runTask     TaskDispatchFunc
	runDag      DagDispatchFunc
	runTemplate TemplateDispatchFunc
	log         logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	wake    chan struct{}
	stopCh  chan struct{}
	stopped bool
	done    chan struct{}
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithClock overrides the scheduler's notion of "now", for deterministic
// tests of missed-tick collapsing.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger overrides the scheduler's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// New builds a Scheduler. The three dispatch funcs may be nil if that
// target type is never registered.
func New(runTask TaskDispatchFunc, runDag DagDispatchFunc, runTemplate TemplateDispatchFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		runTask:     runTask,
		runDag:      runDag,
		runTemplate: runTemplate,
		log:         logger.Default,
		now:         time.Now,
		jobs:        make(map[string]*job),
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers or replaces a CronJob, parsing its Spec and computing its
// first NextTime relative to the scheduler's clock.
func (s *Scheduler) Add(cfg types.CronJob) error {
	sched, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return err
	}
	now := s.now()
	cfg.NextTime = sched.Next(now)
	if cfg.NextTime.IsZero() {
		return fmt.Errorf("cron job %q: no future fire within lookahead window", cfg.ID)
	}

	s.mu.Lock()
	s.jobs[cfg.ID] = &job{cfg: cfg, schedule: sched}
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// Remove unregisters a job by id.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	s.signalWake()
}

// List returns a snapshot of all registered jobs.
func (s *Scheduler) List() []types.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.cfg)
	}
	return out
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks, driving the dispatcher loop until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.done)
	for {
		sleep, due := s.tick()
		for _, j := range due {
			s.dispatch(j)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Stop signals the loop to exit and blocks until it has.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
	<-s.done
}

// tick scans for due jobs under lock, advances each due job's nextTime
// (collapsing any missed intermediate fires into a single dispatch per
// spec §4.6 guarantee 4), and returns the sleep duration until the nearest
// remaining nextTime.
func (s *Scheduler) tick() (time.Duration, []types.CronJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []types.CronJob
	nearest := time.Time{}

	for _, j := range s.jobs {
		if !j.cfg.Enabled {
			continue
		}
		if !j.cfg.NextTime.After(now) {
			due = append(due, j.cfg)
			// Recompute from "now", not from the stale nextTime: a process
			// paused across several ticks collapses to exactly one fire.
			j.cfg.NextTime = j.schedule.Next(now)
		}
		if !j.cfg.NextTime.IsZero() && (nearest.IsZero() || j.cfg.NextTime.Before(nearest)) {
			nearest = j.cfg.NextTime
		}
	}

	if nearest.IsZero() {
		return time.Minute, due
	}
	sleep := nearest.Sub(now)
	if sleep < 0 {
		sleep = 0
	}
	return sleep, due
}

// dispatch fans a due job out to its target executor by a freshly minted
// runId, not awaiting completion (spec §4.6 guarantee: "does not re-fire
// until the previous fire's dispatch has been submitted, not awaited").
func (s *Scheduler) dispatch(cfg types.CronJob) {
	runID := fmt.Sprintf("cron_%s_%d_%d", cfg.ID, s.now().UnixNano(), rand.Intn(1_000_000))
	s.log.Info("cron job fired", "cron_job_id", cfg.ID, "run_id", runID, "target_type", int(cfg.TargetType))

	switch cfg.TargetType {
	case types.TargetSingleTask:
		if s.runTask != nil {
			go s.runTask(cfg.TaskPayload, runID)
		}
	case types.TargetDag:
		if s.runDag != nil {
			go s.runDag(cfg.DagPayload, runID)
		}
	case types.TargetTemplate:
		if s.runTemplate != nil {
			go s.runTemplate(cfg.TemplatePayload, runID)
		}
	}
}
