package generator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapilot/internal/config"
	"adapilot/internal/gateway/algorithm"
	"adapilot/internal/signal"
)

type stubSource struct {
	mu      sync.Mutex
	next    algorithm.Analysis
	err     error
	calls   int
	perCall func(n int) algorithm.Analysis
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Analyze(ctx context.Context, req algorithm.Request) (algorithm.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return algorithm.Analysis{}, s.err
	}
	if s.perCall != nil {
		return s.perCall(s.calls), nil
	}
	return s.next, nil
}

func buyAnalysis(price float64) algorithm.Analysis {
	return algorithm.Analysis{
		Direction:   "BUY",
		Confidence:  85,
		Price:       price,
		RSI:         28.5,
		BBPosition:  0.15,
		VolumeRatio: 1.8,
	}
}

func newTestService(t *testing.T, src algorithm.Source, overrides func(*config.GeneratorConfig)) (*Service, *time.Time) {
	t.Helper()
	cfg := config.GeneratorConfig{
		PollIntervalSeconds: 1,
		MaxSignalsPerHour:   10,
		DedupWindowMinutes:  30,
		CacheHorizonMinutes: 120,
		ErrorWindow:         3,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	conv := signal.NewConverter(config.ConverterConfig{
		BasePositionSize: 50, MaxPositionSize: 200,
		BaseStopLossPct: 0.05, BaseTakeProfitPct: 0.10, ExpiryMinutes: 30,
	})
	svc := NewService(cfg, "15m", src, conv)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := &now
	svc.nowFn = func() time.Time { return *clock }
	return svc, clock
}

func TestRunCycleAcceptsAndCaches(t *testing.T) {
	src := &stubSource{next: buyAnalysis(0.7234)}
	svc, _ := newTestService(t, src, nil)

	outcome, sig := svc.RunCycle(context.Background())
	require.Equal(t, OutcomeAccepted, outcome)
	require.NotNil(t, sig)

	cached, ok := svc.Signal(sig.ID)
	require.True(t, ok)
	assert.Equal(t, sig, cached)

	st := svc.Status()
	assert.Equal(t, 1, st.SignalsToday)
	assert.Equal(t, 1, st.Counters.Accepted)
	assert.Equal(t, HealthHealthy, st.Health)
	assert.Equal(t, sig.Timestamp, st.LastSignalAt)
}

func TestRunCycleDropsDuplicateWithinWindow(t *testing.T) {
	src := &stubSource{next: buyAnalysis(0.7234)}
	svc, clock := newTestService(t, src, nil)

	outcome, first := svc.RunCycle(context.Background())
	require.Equal(t, OutcomeAccepted, outcome)
	require.NotNil(t, first)

	// Same analysis five minutes later is functionally identical.
	*clock = clock.Add(5 * time.Minute)
	outcome, dup := svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Nil(t, dup)

	st := svc.Status()
	assert.Equal(t, 1, st.SignalsToday)
	assert.Equal(t, 1, st.Counters.Accepted)
	assert.Equal(t, 1, st.Counters.Duplicates)

	// Past the dedup window the same reading is a fresh signal.
	*clock = clock.Add(31 * time.Minute)
	outcome, again := svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.NotNil(t, again)
}

func TestRunCycleEnforcesHourlyCeiling(t *testing.T) {
	src := &stubSource{perCall: func(n int) algorithm.Analysis {
		return buyAnalysis(0.70 + float64(n)*0.01) // distinct fingerprints
	}}
	svc, clock := newTestService(t, src, func(cfg *config.GeneratorConfig) {
		cfg.MaxSignalsPerHour = 3
	})

	accepted := 0
	for i := 0; i < 6; i++ {
		*clock = clock.Add(2 * time.Second)
		outcome, _ := svc.RunCycle(context.Background())
		if outcome == OutcomeAccepted {
			accepted++
		}
	}
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, svc.Status().SignalsHour)
	assert.Equal(t, 3, svc.Status().Counters.RateLimited)

	// Window slides: an hour later generation resumes.
	*clock = clock.Add(61 * time.Minute)
	outcome, _ := svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeAccepted, outcome)
}

func TestRunCycleEnforcesMinimumSpacing(t *testing.T) {
	src := &stubSource{perCall: func(n int) algorithm.Analysis {
		return buyAnalysis(0.70 + float64(n)*0.01)
	}}
	svc, clock := newTestService(t, src, func(cfg *config.GeneratorConfig) {
		cfg.PollIntervalSeconds = 300
	})

	outcome, _ := svc.RunCycle(context.Background())
	require.Equal(t, OutcomeAccepted, outcome)

	*clock = clock.Add(30 * time.Second)
	outcome, _ = svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeRateLimited, outcome)

	*clock = clock.Add(300 * time.Second)
	outcome, _ = svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeAccepted, outcome)
}

func TestRateLimitedSignalDoesNotPoisonDedup(t *testing.T) {
	src := &stubSource{perCall: func(n int) algorithm.Analysis {
		if n == 1 {
			return buyAnalysis(0.70)
		}
		return buyAnalysis(0.75) // same reading on every later poll
	}}
	svc, clock := newTestService(t, src, func(cfg *config.GeneratorConfig) {
		cfg.PollIntervalSeconds = 300
	})

	outcome, _ := svc.RunCycle(context.Background())
	require.Equal(t, OutcomeAccepted, outcome)

	// Too close to the first signal: spacing rejects it.
	*clock = clock.Add(60 * time.Second)
	outcome, _ = svc.RunCycle(context.Background())
	require.Equal(t, OutcomeRateLimited, outcome)

	// Once spacing clears the identical still-valid setup must be accepted;
	// only accepted signals count against the dedup window.
	*clock = clock.Add(300 * time.Second)
	outcome, sig := svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeAccepted, outcome)
	require.NotNil(t, sig)
	assert.Equal(t, 0.75, sig.Price)
}

func TestRunCycleHoldProducesNothing(t *testing.T) {
	src := &stubSource{next: algorithm.Analysis{Direction: "HOLD", Price: 0.72, Confidence: 40}}
	svc, _ := newTestService(t, src, nil)

	outcome, sig := svc.RunCycle(context.Background())
	assert.Equal(t, OutcomeHold, outcome)
	assert.Nil(t, sig)
	assert.Empty(t, svc.Signals())
}

func TestSourceErrorsFlipHealthAfterWindow(t *testing.T) {
	src := &stubSource{err: fmt.Errorf("engine unreachable")}
	svc, _ := newTestService(t, src, func(cfg *config.GeneratorConfig) {
		cfg.ErrorWindow = 3
	})

	for i := 0; i < 2; i++ {
		outcome, _ := svc.RunCycle(context.Background())
		assert.Equal(t, OutcomeSourceError, outcome)
	}
	assert.Equal(t, HealthHealthy, svc.Status().Health)

	svc.RunCycle(context.Background())
	st := svc.Status()
	assert.Equal(t, HealthError, st.Health)
	assert.NotEmpty(t, st.RecentErrors)

	// One good cycle clears the streak.
	src.mu.Lock()
	src.err = nil
	src.next = algorithm.Analysis{Direction: "HOLD", Price: 0.72}
	src.mu.Unlock()
	svc.RunCycle(context.Background())
	assert.Equal(t, HealthHealthy, svc.Status().Health)
}

func TestListenerPanicDoesNotAffectOthers(t *testing.T) {
	src := &stubSource{next: buyAnalysis(0.7234)}
	svc, _ := newTestService(t, src, nil)

	received := make(chan string, 2)
	svc.Subscribe("boom", func(s *signal.TradingSignal) {
		received <- "boom"
		panic("listener blew up")
	})
	svc.Subscribe("calm", func(s *signal.TradingSignal) {
		received <- "calm"
	})

	outcome, _ := svc.RunCycle(context.Background())
	require.Equal(t, OutcomeAccepted, outcome)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-received:
			got[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("listener was not invoked")
		}
	}
	assert.True(t, got["boom"])
	assert.True(t, got["calm"])
}

func TestStartStop(t *testing.T) {
	src := &stubSource{next: algorithm.Analysis{Direction: "HOLD", Price: 0.72}}
	svc, _ := newTestService(t, src, nil)

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		return svc.Status().Counters.Polls >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, svc.Status().Running)

	svc.Stop()
	assert.False(t, svc.Status().Running)
}
