package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is the work run on every tick. Errors are logged and never stop the loop.
type Job func(ctx context.Context) error

// Scheduler fires a single job on a Schedule.
type Scheduler struct {
	schedule Schedule
	job      Job
	nowFn    func() time.Time

	mu      sync.RWMutex
	next    time.Time
	lastRun time.Time
	lastErr error
}

// New creates a scheduler. nowFn supplies the clock used to compute run times
// and decides the zone hours are read in.
func New(schedule Schedule, job Job, nowFn func() time.Time) *Scheduler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Scheduler{
		schedule: schedule,
		job:      job,
		nowFn:    nowFn,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(s.nowFn())
		s.setNext(next)
		log.Info().Str("schedule", s.schedule.Expr).Time("next_run", next).Msg("scheduler: next scheduled run")

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("scheduler: stopped")
			return nil
		case <-timer.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	started := s.nowFn()
	err := s.runJob(ctx)

	s.mu.Lock()
	s.lastRun = started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("scheduler: scheduled job failed")
	}
}

func (s *Scheduler) runJob(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduler: recovered from panic in job")
			err = errPanic
		}
	}()
	return s.job(ctx)
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

// Next returns the next planned run, zero before Run starts.
func (s *Scheduler) Next() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// LastRun returns when the job last started and what it returned.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastErr
}

// Expr is the normalised schedule expression.
func (s *Scheduler) Expr() string {
	return s.schedule.Expr
}
