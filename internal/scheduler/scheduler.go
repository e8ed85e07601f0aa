package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "busycal/internal/log"
)

// Job is the unit of work run on every tick.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	spec string
	job  Job
	cron *cron.Cron
	id   cron.EntryID

	// ctx is set by Run before the cron goroutine starts and is read only by
	// job invocations.
	ctx context.Context
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 15m") and binds job to it. Times are evaluated in loc.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		spec: spec,
		job:  job,
		ctx:  context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

func (s *Scheduler) tick() {
	start := time.Now()
	if err := s.job(s.ctx); err != nil {
		appLog.Error("scheduled job failed", err, "spec", s.spec, "elapsed", time.Since(start).Round(time.Millisecond))
		return
	}
	appLog.Debug("scheduled job done", "spec", s.spec, "elapsed", time.Since(start).Round(time.Millisecond))
}

// Run starts the schedule and blocks until ctx is cancelled. It then stops
// the schedule and waits for an in-flight job to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.spec, "next", s.Next())

	<-ctx.Done()

	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped", "spec", s.spec)
}

// Next is the next planned run, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// cronLogger routes cron's internal logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
