// Package generator owns the signal polling loop: it asks the analysis engine
// for fresh analyses, converts them, filters duplicates, applies rate limits
// and fans accepted signals out to listeners.
package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/gateway/algorithm"
	"adapilot/internal/logger"
	"adapilot/internal/scheduler"
	"adapilot/internal/signal"
)

// Listener receives every accepted signal. Implementations must not block for
// long; each listener runs on its own goroutine per signal.
type Listener func(*signal.TradingSignal)

// Outcome classifies what a single polling cycle produced.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeHold        Outcome = "hold"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeRejected    Outcome = "rejected"
	OutcomeSourceError Outcome = "source_error"
)

type Service struct {
	cfg       config.GeneratorConfig
	source    algorithm.Source
	converter *signal.Converter
	timeframe string

	dedup   *dedupCache
	cache   *signalCache
	limiter *rateLimiter

	mu           sync.Mutex
	listeners    map[string]Listener
	recentErrors []CycleError
	running      bool
	lastSignalAt time.Time
	lastPollAt   time.Time
	signalsToday int
	dayAnchor    time.Time
	cycleErrs    int // consecutive cycles that ended in error
	counters     Counters

	nowFn  func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// CycleError is one entry of the bounded recent-error list.
type CycleError struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Counters are cumulative since start.
type Counters struct {
	Polls       int `json:"polls"`
	Accepted    int `json:"accepted"`
	Holds       int `json:"holds"`
	Duplicates  int `json:"duplicates"`
	RateLimited int `json:"rate_limited"`
	Rejected    int `json:"rejected"`
	SourceErrs  int `json:"source_errors"`
}

func NewService(cfg config.GeneratorConfig, timeframe string, source algorithm.Source, converter *signal.Converter) *Service {
	return &Service{
		cfg:       cfg,
		source:    source,
		converter: converter,
		timeframe: timeframe,
		dedup:     newDedupCache(time.Duration(cfg.DedupWindowMinutes) * time.Minute),
		cache:     newSignalCache(time.Duration(cfg.CacheHorizonMinutes) * time.Minute),
		limiter:   newRateLimiter(time.Duration(cfg.PollIntervalSeconds)*time.Second, cfg.MaxSignalsPerHour),
		listeners: make(map[string]Listener),
		nowFn:     time.Now,
	}
}

// Subscribe registers a named listener. Re-registering a name replaces the
// previous listener.
func (s *Service) Subscribe(name string, l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = l
}

func (s *Service) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, name)
}

// Start launches the polling loop in its own goroutine, with an immediate
// first poll. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	sched := scheduler.NewIntervalScheduler(runCtx, "signal-generator",
		time.Duration(s.cfg.PollIntervalSeconds)*time.Second)
	sched.RunImmediately = true

	go func() {
		defer close(s.done)
		sched.Start(func() {
			s.runCycle(runCtx)
		})
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
}

// Stop cancels the loop and waits for the current cycle to finish. In-flight
// listener callbacks are left to complete on their own goroutines.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// RunCycle performs one poll synchronously and reports the outcome. The
// scheduler calls this on every tick; tests and the manual trigger endpoint
// call it directly.
func (s *Service) RunCycle(ctx context.Context) (Outcome, *signal.TradingSignal) {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) (Outcome, *signal.TradingSignal) {
	now := s.nowFn()
	s.mu.Lock()
	s.lastPollAt = now
	s.counters.Polls++
	s.rollDay(now)
	s.mu.Unlock()

	analysis, err := s.source.Analyze(ctx, algorithm.Request{Timeframe: s.timeframe})
	if err != nil {
		s.recordError(fmt.Sprintf("analysis source %s: %v", s.source.Name(), err))
		s.bump(func(c *Counters) { c.SourceErrs++ })
		return OutcomeSourceError, nil
	}

	sig, err := s.converter.Convert(analysis)
	if err != nil {
		s.recordError(fmt.Sprintf("conversion: %v", err))
		s.bump(func(c *Counters) { c.Rejected++ })
		return OutcomeRejected, nil
	}
	if sig == nil {
		s.clearErrorStreak()
		s.bump(func(c *Counters) { c.Holds++ })
		logger.Debugf("generator: engine direction is hold, no signal")
		return OutcomeHold, nil
	}

	if s.dedup.Seen(sig.Fingerprint(), now) {
		s.clearErrorStreak()
		s.bump(func(c *Counters) { c.Duplicates++ })
		logger.Infof("generator: duplicate signal discarded type=%s price=%.4f pattern=%s",
			sig.Type, sig.Price, sig.Pattern)
		return OutcomeDuplicate, nil
	}

	if ok, reason := s.limiter.Allow(now); !ok {
		s.clearErrorStreak()
		s.bump(func(c *Counters) { c.RateLimited++ })
		logger.Warnf("generator: signal rejected, %s", reason)
		return OutcomeRateLimited, nil
	}

	s.accept(sig, now)
	return OutcomeAccepted, sig
}

func (s *Service) accept(sig *signal.TradingSignal, now time.Time) {
	s.dedup.Record(sig.Fingerprint(), now)
	s.cache.Put(sig, now)

	s.mu.Lock()
	s.lastSignalAt = now
	s.signalsToday++
	s.cycleErrs = 0
	s.counters.Accepted++
	listeners := make(map[string]Listener, len(s.listeners))
	for name, l := range s.listeners {
		listeners[name] = l
	}
	s.mu.Unlock()

	logger.Infof("generator: signal accepted id=%s type=%s price=%.4f confidence=%.0f pattern=%s size=%.2f",
		sig.ID, sig.Type, sig.Price, sig.Confidence, sig.Pattern, sig.Risk.PositionSize)

	for name, l := range listeners {
		go func(name string, l Listener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("generator: listener %s panicked on signal %s: %v", name, sig.ID, r)
				}
			}()
			l(sig)
		}(name, l)
	}
}

// Signal resolves a previously accepted signal still inside the cache horizon.
func (s *Service) Signal(id string) (*signal.TradingSignal, bool) {
	return s.cache.Get(id)
}

// Signals returns the cached signals, newest first.
func (s *Service) Signals() []*signal.TradingSignal {
	return s.cache.Snapshot()
}

func (s *Service) recordError(msg string) {
	logger.Errorf("generator: %s", msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleErrs++
	s.recentErrors = append(s.recentErrors, CycleError{At: s.nowFn(), Message: msg})
	if limit := s.cfg.ErrorWindow * 2; limit > 0 && len(s.recentErrors) > limit {
		s.recentErrors = s.recentErrors[len(s.recentErrors)-limit:]
	}
}

func (s *Service) clearErrorStreak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleErrs = 0
}

func (s *Service) bump(fn func(*Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.counters)
}

// rollDay resets the daily counter at local midnight. Caller holds s.mu.
func (s *Service) rollDay(now time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !day.Equal(s.dayAnchor) {
		s.dayAnchor = day
		s.signalsToday = 0
	}
}
