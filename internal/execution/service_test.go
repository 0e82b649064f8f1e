package execution

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
	"adapilot/internal/gateway/venue"
	"adapilot/internal/signal"
)

type fakeVenue struct {
	mu          sync.Mutex
	openFn      func(req venue.OpenRequest) (*venue.OpenResult, error)
	openCalls   []venue.OpenRequest
	balance     venue.Balance
	balanceErr  error
	constraints venue.Constraints
}

func (f *fakeVenue) Name() string { return "fake" }

func (f *fakeVenue) OpenPosition(ctx context.Context, req venue.OpenRequest) (*venue.OpenResult, error) {
	f.mu.Lock()
	f.openCalls = append(f.openCalls, req)
	f.mu.Unlock()
	if f.openFn != nil {
		return f.openFn(req)
	}
	return &venue.OpenResult{TransactionID: "tx-1", SubmittedAt: time.Now()}, nil
}

func (f *fakeVenue) ClosePosition(ctx context.Context, positionID string) error { return nil }

func (f *fakeVenue) GetPositions(ctx context.Context, address string) ([]venue.Position, error) {
	return nil, nil
}

func (f *fakeVenue) GetBalance(ctx context.Context, address string) (venue.Balance, error) {
	if f.balanceErr != nil {
		return venue.Balance{}, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeVenue) GetPrice(ctx context.Context, asset string) (venue.PriceQuote, error) {
	return venue.PriceQuote{Asset: asset, Last: 0.72}, nil
}

func (f *fakeVenue) GetTransaction(ctx context.Context, txID string) (venue.TransactionStatus, error) {
	return venue.TxStatusConfirmed, nil
}

func (f *fakeVenue) Constraints() venue.Constraints { return f.constraints }

func (f *fakeVenue) calls() []venue.OpenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]venue.OpenRequest, len(f.openCalls))
	copy(out, f.openCalls)
	return out
}

type fakeWallet struct {
	address string
	v       *fakeVenue
}

func (w *fakeWallet) Address() string { return w.address }

func (w *fakeWallet) Balance(ctx context.Context) (venue.Balance, error) {
	return w.v.GetBalance(ctx, w.address)
}

func (w *fakeWallet) Connected(ctx context.Context) bool { return true }

type fakeTracker struct {
	mu      sync.Mutex
	tracked []string
}

func (t *fakeTracker) Track(txID, signalID, walletAddress string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked = append(t.tracked, txID)
}

func (t *fakeTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *fakeRecorder) RecordExecution(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) last() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return Record{}, false
	}
	return r.records[len(r.records)-1], true
}

// pendingSignal builds a real converted long signal. Confidence 50 keeps the
// sizing scale at 1.0 so Risk.PositionSize equals base.
func pendingSignal(t *testing.T, base float64) *signal.TradingSignal {
	t.Helper()
	c := signal.NewConverter(config.ConverterConfig{
		BasePositionSize: base, MaxPositionSize: 500,
		BaseStopLossPct: 0.05, BaseTakeProfitPct: 0.10, ExpiryMinutes: 30,
	})
	s, err := c.Convert(algorithm.Analysis{
		Direction: "BUY", Confidence: 50, Price: 0.7234,
		RSI: 28.5, BBPosition: 0.15, VolumeRatio: 1.8,
	})
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func newTestExecution(v *fakeVenue) (*Service, *fakeTracker, *fakeRecorder) {
	tracker := &fakeTracker{}
	recorder := &fakeRecorder{}
	w := &fakeWallet{address: "addr1qtest", v: v}
	svc := NewService(config.ExecutionConfig{
		MinConfidence:   40,
		DefaultLeverage: 2,
		EstimatedFeePct: 0.003,
		MaxAttempts:     3,
		BackoffBaseMs:   1,
		BudgetSeconds:   30,
		MinPositionSize: 40,
		MaxPositionSize: 200,
	}, v, w, tracker, recorder)
	svc.sleepFn = func(time.Duration) {}
	return svc, tracker, recorder
}

func TestExecuteHappyPath(t *testing.T) {
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	svc, tracker, recorder := newTestExecution(v)
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.True(t, res.Success, res.Summary)

	assert.Equal(t, "tx-1", res.TransactionID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, signal.StatusExecuted, sig.Status())
	assert.Equal(t, 1, tracker.count())

	rec, ok := recorder.last()
	require.True(t, ok)
	assert.True(t, rec.Success)
	assert.Equal(t, sig.ID, rec.SignalID)

	// Round-trip: amount, side and address reach the venue unchanged.
	calls := v.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sig.Risk.PositionSize, calls[0].Collateral)
	assert.Equal(t, "long", calls[0].Side)
	assert.Equal(t, "addr1qtest", calls[0].Address)
	assert.Equal(t, sig.Risk.StopLoss, calls[0].StopLoss)
	assert.Equal(t, sig.Risk.TakeProfit, calls[0].TakeProfit)
}

func TestExecuteInsufficientBalance(t *testing.T) {
	v := &fakeVenue{balance: venue.Balance{Available: 30}}
	svc, tracker, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	require.NotNil(t, res.Error)

	assert.Equal(t, ErrTypeBalance, res.Error.Type)
	assert.Contains(t, res.Error.Message, "insufficient balance")
	assert.Empty(t, v.calls(), "venue must not be called on preflight failure")
	assert.Equal(t, 0, tracker.count())
	assert.Equal(t, signal.StatusPending, sig.Status())
}

func TestExecuteVenueTimeout(t *testing.T) {
	v := &fakeVenue{
		balance: venue.Balance{Available: 500},
		openFn: func(venue.OpenRequest) (*venue.OpenResult, error) {
			return nil, venue.Transient(fmt.Errorf("request timed out"))
		},
	}
	svc, tracker, recorder := newTestExecution(v)
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	require.NotNil(t, res.Error)

	assert.Equal(t, ErrTypeNetwork, res.Error.Type)
	assert.Equal(t, signal.StatusFailed, sig.Status())
	assert.Equal(t, 3, res.Attempts, "network faults are retried to the limit")
	assert.Equal(t, 0, tracker.count(), "no transaction record on failure")

	rec, ok := recorder.last()
	require.True(t, ok)
	assert.False(t, rec.Success)
	assert.Equal(t, "network", rec.ErrorType)
}

func TestExecuteAPIErrorNotRetried(t *testing.T) {
	v := &fakeVenue{
		balance: venue.Balance{Available: 500},
		openFn: func(venue.OpenRequest) (*venue.OpenResult, error) {
			return nil, fmt.Errorf("venue returned status 400: collateral below minimum")
		},
	}
	svc, _, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	assert.Equal(t, ErrTypeAPI, res.Error.Type)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, signal.StatusFailed, sig.Status())
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	var calls int
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	v.openFn = func(venue.OpenRequest) (*venue.OpenResult, error) {
		calls++
		if calls < 3 {
			return nil, venue.Transient(fmt.Errorf("connection reset"))
		}
		return &venue.OpenResult{TransactionID: "tx-retry", SubmittedAt: time.Now()}, nil
	}
	svc, tracker, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.True(t, res.Success, res.Summary)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "tx-retry", res.TransactionID)
	assert.Equal(t, 1, tracker.count())
}

func TestExecuteRejectsExpiredSignal(t *testing.T) {
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	svc, _, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	svc.nowFn = func() time.Time { return sig.ExpiresAt.Add(time.Minute) }

	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	assert.Equal(t, ErrTypeValidation, res.Error.Type)
	assert.Equal(t, signal.StatusExpired, sig.Status())
	assert.Empty(t, v.calls())
}

func TestExecuteRejectsLowConfidence(t *testing.T) {
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	svc, _, _ := newTestExecution(v)
	svc.cfg.MinConfidence = 70

	sig := pendingSignal(t, 50) // confidence 50
	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	assert.Equal(t, ErrTypeValidation, res.Error.Type)
	assert.Contains(t, res.Error.Message, "confidence")
}

func TestExecuteRejectsExcessiveLeverage(t *testing.T) {
	v := &fakeVenue{
		balance:     venue.Balance{Available: 500},
		constraints: venue.Constraints{MaxLeverage: 10},
	}
	svc, tracker, _ := newTestExecution(v)
	svc.cfg.DefaultLeverage = 25
	sig := pendingSignal(t, 50)

	res := svc.Execute(context.Background(), sig)
	require.False(t, res.Success)
	require.NotNil(t, res.Error)

	assert.Equal(t, ErrTypeValidation, res.Error.Type)
	assert.Contains(t, res.Error.Message, "leverage")
	assert.Empty(t, v.calls(), "venue must not be called with leverage above its maximum")
	assert.Equal(t, 0, tracker.count())
}

func TestPreflightLeverageUsesTighterBound(t *testing.T) {
	// Configured limit below the venue limit wins.
	v := &fakeVenue{
		balance:     venue.Balance{Available: 500},
		constraints: venue.Constraints{MaxLeverage: 20},
	}
	svc, _, _ := newTestExecution(v)
	svc.cfg.MaxLeverage = 5
	svc.cfg.DefaultLeverage = 8

	report := svc.Preflight(context.Background(), pendingSignal(t, 50))
	require.False(t, report.CanExecute)
	var detail string
	for _, c := range report.Checks {
		if c.Name == "leverage" {
			detail = c.Detail
			assert.False(t, c.Passed)
		}
	}
	assert.Contains(t, detail, "5.0x")

	svc.cfg.DefaultLeverage = 4
	report = svc.Preflight(context.Background(), pendingSignal(t, 50))
	assert.True(t, report.CanExecute)
}

func TestCancelBeforeSubmission(t *testing.T) {
	release := make(chan struct{})
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	svc, tracker, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	// Stall the first backoff so Cancel lands between attempts.
	v.openFn = func(venue.OpenRequest) (*venue.OpenResult, error) {
		return nil, venue.Transient(fmt.Errorf("unreachable"))
	}
	svc.sleepFn = func(time.Duration) { <-release }

	done := make(chan *Result, 1)
	go func() { done <- svc.Execute(context.Background(), sig) }()

	assert.Eventually(t, func() bool { return svc.Cancel(sig.ID) }, time.Second, 5*time.Millisecond)
	close(release)

	res := <-done
	require.False(t, res.Success)
	assert.Contains(t, res.Summary, "cancelled")
	assert.Equal(t, signal.StatusCancelled, sig.Status())
	assert.Equal(t, 0, tracker.count())
}

func TestCancelUnknownSignal(t *testing.T) {
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	svc, _, _ := newTestExecution(v)
	assert.False(t, svc.Cancel("nope"))
}

func TestExecuteSingleFlightPerSignal(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	v := &fakeVenue{balance: venue.Balance{Available: 500}}
	v.openFn = func(venue.OpenRequest) (*venue.OpenResult, error) {
		close(started)
		<-release
		return &venue.OpenResult{TransactionID: "tx-slow", SubmittedAt: time.Now()}, nil
	}
	svc, _, _ := newTestExecution(v)
	sig := pendingSignal(t, 50)

	done := make(chan *Result, 1)
	go func() { done <- svc.Execute(context.Background(), sig) }()
	<-started

	second := svc.Execute(context.Background(), sig)
	require.False(t, second.Success)
	assert.Equal(t, ErrTypeValidation, second.Error.Type)
	assert.Contains(t, second.Error.Message, "already executing")

	close(release)
	first := <-done
	assert.True(t, first.Success)
}
