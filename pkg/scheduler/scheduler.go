package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var ErrUnknownJob = errors.New("unknown job")

// Func is a scheduled unit of work. The context is cancelled when the
// scheduler stops.
type Func func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   Func
	id   cron.EntryID
}

// Scheduler runs named jobs on cron specs. A run that is still going when the
// next tick arrives is skipped, and a panicking job is logged, not fatal.
type Scheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]*job
}

func New() *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:  context.Background(),
		jobs: make(map[string]*job),
	}
}

// Add registers fn under name. spec is any robfig/cron expression,
// including descriptors such as "@every 10m".
func (s *Scheduler) Add(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	j.id = id
	s.jobs[name] = j
	return nil
}

func (s *Scheduler) run(j *job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := j.fn(ctx); err != nil {
		log.Error().Err(err).Str("job", j.name).Dur("took", time.Since(start)).Msg("❌ Scheduled job failed")
		return
	}
	log.Debug().Str("job", j.name).Dur("took", time.Since(start)).Msg("⏱️ Scheduled job done")
}

// Trigger runs a job immediately, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j.fn(ctx)
}

// Next reports the next activation of every job.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = s.cron.Entry(j.id).Next
	}
	return out
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	log.Info().Int("jobs", n).Msg("🕐 Scheduler started")
	for name, at := range s.Next() {
		log.Debug().Str("job", name).Time("next", at).Msg("next run")
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// cronLogger routes robfig/cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	log.Debug().Fields(kv).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	log.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}
