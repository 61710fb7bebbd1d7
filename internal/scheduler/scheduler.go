// Package scheduler fires the daily log run once the configured local
// time of day is reached. The check is level-triggered: after the
// target time every tick matches until the run-state guard reports the
// day as done, which covers app launches that miss the exact minute.
package scheduler

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Guard reports whether a run is still wanted today. It is consulted
// on every matching tick; once it returns false the scheduler goes
// quiet until the next day.
type Guard func() bool

// Job is the work fired by the scheduler. Errors are logged and the
// scheduler keeps ticking, so a failed run is retried on the next tick.
type Job func(ctx context.Context) error

type clockTime struct {
	hour   int
	minute int
}

// parseRunAt parses "HH:mm". Malformed input falls back to 08:00 and
// components are clamped into range.
func parseRunAt(value string) clockTime {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return clockTime{hour: 8}
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil {
		return clockTime{hour: 8}
	}
	return clockTime{hour: clamp(h, 0, 23), minute: clamp(m, 0, 59)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scheduler runs Job once per day at the configured local time.
type Scheduler struct {
	runAt     string
	location  func() *time.Location
	shouldRun Guard
	job       Job
	now       func() time.Time

	cron *rcron.Cron

	mu         sync.Mutex
	inProgress bool
	cancel     context.CancelFunc
}

func New(runAt string, location func() *time.Location, shouldRun Guard, job Job) *Scheduler {
	return &Scheduler{
		runAt:     runAt,
		location:  location,
		shouldRun: shouldRun,
		job:       job,
		now:       time.Now,
	}
}

// Start registers the one-minute tick and fires an immediate tick to
// cover a launch after the target time has already passed.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron = rcron.New()
	if _, err := s.cron.AddFunc("* * * * *", func() {
		s.tick(runCtx)
	}); err != nil {
		cancel()
		return err
	}
	s.cron.Start()
	log.Printf("[scheduler] started, daily run at %s", s.runAt)

	go s.tick(runCtx)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	log.Printf("[scheduler] stopped")
}

// tick runs at most one job at a time. Overlapping ticks while a run
// is in flight are dropped, not queued.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	target := parseRunAt(s.runAt)
	local := s.now().In(s.location())
	reached := local.Hour() > target.hour ||
		(local.Hour() == target.hour && local.Minute() >= target.minute)
	if !reached || !s.shouldRun() {
		return
	}

	if err := s.job(ctx); err != nil {
		log.Printf("[scheduler] run failed: %v", err)
	}
}
