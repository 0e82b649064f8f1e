package scheduler

import (
	"context"
	"time"

	"adapilot/internal/logger"
)

// IntervalScheduler runs a task on a fixed interval until its context is
// cancelled. The polling loops in this system (signal generation, transaction
// reconciliation, position monitoring) all run on top of it.
type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool
	Name           string

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		Name:     name,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, invoking task once per interval. Each tick completes before
// the next one is scheduled, so a slow task delays but never overlaps itself.
func (s *IntervalScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("scheduler %s: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("scheduler %s: started interval=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("scheduler %s: ctx done, exit (uptime=%s)",
				s.Name, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-timer.C:
		}
		task()
		timer.Reset(s.Interval)
	}
}
