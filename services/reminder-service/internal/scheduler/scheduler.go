// Package scheduler fires the reminder dispatch job at minute 0 of every hour in the
// service cadence timezone.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/clock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/dispatch"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/lock"
)

const defaultLockTTL = 50 * time.Minute

type Runner interface {
	Run(ctx context.Context) dispatch.Result
}

type Scheduler struct {
	job      Runner
	clock    clock.Clock
	loc      *time.Location
	locker   lock.Locker
	tenantID string
	logger   *slog.Logger
	lockTTL  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(job Runner, clk clock.Clock, loc *time.Location, locker lock.Locker, tenantID string, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if locker == nil {
		locker = lock.NewLocalLocker(clk.Now)
	}
	return &Scheduler{
		job:      job,
		clock:    clk,
		loc:      loc,
		locker:   locker,
		tenantID: tenantID,
		logger:   logger,
		lockTTL:  defaultLockTTL,
	}
}

// Start launches the tick loop. It returns an error if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("reminder scheduler started", "timezone", s.loc.String(), "next_tick", NextTick(s.clock.Now(), s.loc))
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := s.clock.Now()
		next := NextTick(now, s.loc)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return
		}
		s.tick(ctx, next)
	}
}

func (s *Scheduler) tick(ctx context.Context, slot time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch tick panicked", "slot", slot, "panic", r)
		}
	}()

	key := lock.SlotKey(s.tenantID, slot)
	acquired, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Error("tick lock unavailable, skipping tick", "key", key, "err", err)
		return
	}
	if !acquired {
		s.logger.Info("tick already claimed by another replica", "key", key)
		return
	}
	res := s.job.Run(ctx)
	s.logger.Debug("dispatch tick finished", "slot", slot, "skipped", res.Skipped, "sent", res.Sent)
}

// NextTick returns the first instant strictly after now that falls on minute 0 of an hour
// in loc. Stepping whole minutes keeps it correct across DST shifts and half-hour offsets.
func NextTick(now time.Time, loc *time.Location) time.Time {
	t := now.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < 24*60; i++ {
		if t.In(loc).Minute() == 0 {
			return t.In(loc)
		}
		t = t.Add(time.Minute)
	}
	return now.Add(time.Hour)
}
