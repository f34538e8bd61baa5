package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/gyeh/brillestotte/internal/model"
)

// Elector reports whether this instance may act.
type Elector interface {
	IsLeader(ctx context.Context) (bool, error)
}

// State is the phase of one job.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateActing   State = "ACTING"
	StateSkipping State = "SKIPPING"
)

// JobFunc is one iteration of a job.
type JobFunc func(ctx context.Context) (*model.JobSummary, error)

// Intervals sets how often each job runs.
type Intervals struct {
	Promote time.Duration
	Submit  time.Duration
	Retry   time.Duration
}

// Scheduler runs jobs at fixed intervals. Every tick checks leadership
// first; followers skip the iteration. A job never overlaps itself.
type Scheduler struct {
	cron    gocron.Scheduler
	elector Elector
	log     zerolog.Logger

	mu       sync.Mutex
	states   map[string]State
	jobs     map[string]JobFunc
	timeouts map[string]time.Duration
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(elector Elector, loc *time.Location, log zerolog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithStopTimeout(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		cron:     cron,
		elector:  elector,
		log:      log.With().Str("component", "scheduler").Logger(),
		states:   make(map[string]State),
		jobs:     make(map[string]JobFunc),
		timeouts: make(map[string]time.Duration),
	}, nil
}

// Register adds a job run every interval. Each iteration gets the interval
// as its deadline.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	if _, dup := s.jobs[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %s registered twice", name)
	}
	s.jobs[name] = fn
	s.timeouts[name] = interval
	s.states[name] = StateIdle
	s.mu.Unlock()

	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			_, _ = s.tick(ctx, name, fn)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(name),
		gocron.WithTags("payout", name),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}

	s.log.Info().Str("job", name).Dur("interval", interval).Msg("registered job")
	return nil
}

// RegisterJobs registers promote, submit and retry.
func (s *Scheduler) RegisterJobs(svc *Service, iv Intervals) error {
	if err := s.Register(JobPromote, iv.Promote, svc.Promote); err != nil {
		return err
	}
	if err := s.Register(JobSubmit, iv.Submit, svc.Submit); err != nil {
		return err
	}
	return s.Register(JobRetry, iv.Retry, svc.Retry)
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Jobs())).Msg("scheduler started")
}

// Stop waits for in-flight iterations and stops the scheduler.
func (s *Scheduler) Stop() error {
	s.log.Info().Msg("stopping scheduler")
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// State returns the current phase of a job.
func (s *Scheduler) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

// RunNow runs one iteration of a registered job outside its schedule,
// still gated on leadership.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*model.JobSummary, error) {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return s.tick(ctx, name, fn)
}

func (s *Scheduler) setState(name string, st State) {
	s.mu.Lock()
	s.states[name] = st
	s.mu.Unlock()
}

// tick is one iteration: RUNNING, then ACTING or SKIPPING, then IDLE.
// Errors and panics are logged and never escape to the cron runner.
func (s *Scheduler) tick(ctx context.Context, name string, fn JobFunc) (summary *model.JobSummary, err error) {
	start := time.Now()
	log := s.log.With().Str("job", name).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = &JobError{Job: name, Err: fmt.Errorf("panic: %v", r)}
			log.Error().Err(err).Msg("job panicked")
		}
		s.setState(name, StateIdle)
	}()

	s.setState(name, StateRunning)
	leader, lerr := s.elector.IsLeader(ctx)
	if lerr != nil {
		log.Warn().Err(lerr).Msg("leadership check failed, skipping")
		leader = false
	}
	if !leader {
		s.setState(name, StateSkipping)
		log.Debug().Msg("not leader, skipping")
		return &model.JobSummary{Job: name, Duration: time.Since(start)}, nil
	}

	s.setState(name, StateActing)
	summary, err = fn(ctx)
	if summary == nil {
		summary = &model.JobSummary{Job: name}
	}
	summary.Leader = true
	summary.Duration = time.Since(start)

	if err != nil {
		log.Error().Err(err).
			Int("batches", summary.Batches).
			Int("payments", summary.Payments).
			Int("skipped", summary.Skipped).
			Msg("job failed")
		return summary, err
	}

	ev := log.Debug()
	if summary.Payments > 0 || summary.Skipped > 0 {
		ev = log.Info()
	}
	ev.Int("batches", summary.Batches).
		Int("payments", summary.Payments).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("job complete")
	return summary, nil
}
