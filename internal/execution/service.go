package execution

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/gateway/wallet"
	"adapilot/internal/logger"
	"adapilot/internal/signal"
)

// TrackerHandoff receives the transaction reference after a successful
// submission. Implemented by the transaction tracker.
type TrackerHandoff interface {
	Track(txID, signalID, walletAddress string)
}

// Recorder persists the outcome of every execution attempt. Implemented by
// the execution log store; a nil recorder disables persistence.
type Recorder interface {
	RecordExecution(ctx context.Context, rec Record) error
}

// Record is the persisted shape of one execution outcome.
type Record struct {
	SignalID      string
	TransactionID string
	Wallet        string
	Side          string
	Amount        float64
	Leverage      float64
	Price         float64
	Success       bool
	ErrorType     string
	ErrorMessage  string
	Attempts      int
	ExecutedAt    time.Time
}

// Result is the structured response of every execution request.
type Result struct {
	SignalID      string           `json:"signal_id"`
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Summary       string           `json:"summary"`
	Error         *ExecutionError  `json:"error,omitempty"`
	Preflight     *PreflightReport `json:"preflight,omitempty"`
	Attempts      int              `json:"attempts"`
	SubmittedAt   time.Time        `json:"submitted_at,omitempty"`
}

// Service drives the one-click workflow: preflight, submit with bounded
// retries, hand off to the tracker.
type Service struct {
	cfg      config.ExecutionConfig
	venue    venue.Venue
	wallet   wallet.Wallet
	tracker  TrackerHandoff
	recorder Recorder

	mu        sync.Mutex
	inFlight  map[string]bool
	cancelled map[string]bool

	nowFn   func() time.Time
	sleepFn func(time.Duration)
}

func NewService(cfg config.ExecutionConfig, v venue.Venue, w wallet.Wallet, tracker TrackerHandoff, recorder Recorder) *Service {
	return &Service{
		cfg:       cfg,
		venue:     v,
		wallet:    w,
		tracker:   tracker,
		recorder:  recorder,
		inFlight:  make(map[string]bool),
		cancelled: make(map[string]bool),
		nowFn:     time.Now,
		sleepFn:   time.Sleep,
	}
}

// Execute runs the full workflow for one signal. Concurrent calls for the
// same signal are rejected; different signals execute independently.
func (s *Service) Execute(ctx context.Context, sig *signal.TradingSignal) *Result {
	if sig == nil {
		return &Result{Success: false, Summary: "no signal supplied",
			Error: validationErr("signal is nil")}
	}

	s.mu.Lock()
	if s.inFlight[sig.ID] {
		s.mu.Unlock()
		return s.fail(nil, sig, validationErr("signal %s is already executing", sig.ID), 0)
	}
	s.inFlight[sig.ID] = true
	delete(s.cancelled, sig.ID)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sig.ID)
		delete(s.cancelled, sig.ID)
		s.mu.Unlock()
	}()

	report := s.Preflight(ctx, sig)
	if !report.CanExecute {
		execErr := classifyPreflight(report)
		if sig.Expired(s.nowFn()) {
			if err := sig.Transition(signal.StatusExpired); err != nil {
				logger.Warnf("execution: %v", err)
			}
		}
		res := s.fail(ctx, sig, execErr, 0)
		res.Preflight = report
		return res
	}

	if err := sig.Transition(signal.StatusExecuting); err != nil {
		return s.fail(ctx, sig, validationErr("%v", err), 0)
	}

	budget := time.Duration(s.cfg.BudgetSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result := s.submitWithRetry(runCtx, sig)
	result.Preflight = report
	return result
}

// Cancel requests cancellation of a pending execution. It is honored only
// before the venue call has been sent; a submitted transaction runs to
// completion.
func (s *Service) Cancel(signalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight[signalID] {
		return false
	}
	s.cancelled[signalID] = true
	logger.Infof("execution: cancellation requested for signal %s", signalID)
	return true
}

func (s *Service) submitWithRetry(ctx context.Context, sig *signal.TradingSignal) *Result {
	req := s.buildRequest(sig)
	attempts := 0
	var lastErr *ExecutionError

	for attempts < s.maxAttempts() {
		if s.cancelRequested(sig.ID) {
			if err := sig.Transition(signal.StatusCancelled); err != nil {
				logger.Warnf("execution: %v", err)
			}
			logger.Infof("execution: signal %s cancelled before submission", sig.ID)
			return &Result{
				SignalID: sig.ID,
				Success:  false,
				Summary:  "execution cancelled before submission",
				Error:    validationErr("execution cancelled by request"),
				Attempts: attempts,
			}
		}
		if err := ctx.Err(); err != nil {
			lastErr = &ExecutionError{Type: ErrTypeNetwork,
				Message: fmt.Sprintf("execution budget exhausted after %d attempts", attempts), Cause: err}
			break
		}

		attempts++
		open, err := s.venue.OpenPosition(ctx, req)
		if err == nil {
			return s.succeed(ctx, sig, req, open, attempts)
		}

		lastErr = classifyVenueErr(err)
		logger.Warnf("execution: attempt %d/%d for signal %s failed (%s): %s",
			attempts, s.maxAttempts(), sig.ID, lastErr.Type, lastErr.Message)
		if !lastErr.Retryable() || attempts >= s.maxAttempts() {
			break
		}
		s.sleepFn(s.backoff(attempts))
	}

	if lastErr == nil {
		lastErr = &ExecutionError{Type: ErrTypeNetwork, Message: "no execution attempt completed"}
	}
	if err := sig.Transition(signal.StatusFailed); err != nil {
		logger.Warnf("execution: %v", err)
	}
	return s.fail(ctx, sig, lastErr, attempts)
}

func (s *Service) succeed(ctx context.Context, sig *signal.TradingSignal, req venue.OpenRequest, open *venue.OpenResult, attempts int) *Result {
	if err := sig.Transition(signal.StatusExecuted); err != nil {
		logger.Warnf("execution: %v", err)
	}
	logger.Infof("execution: signal %s submitted tx=%s side=%s amount=%.2f attempts=%d",
		sig.ID, open.TransactionID, req.Side, req.Collateral, attempts)

	if s.tracker != nil {
		s.tracker.Track(open.TransactionID, sig.ID, req.Address)
	}
	s.record(ctx, sig, req, open.TransactionID, nil, attempts)

	return &Result{
		SignalID:      sig.ID,
		Success:       true,
		TransactionID: open.TransactionID,
		Summary: fmt.Sprintf("%s %.2f ADA at %.4f submitted (tx %s)",
			strings.ToUpper(req.Side), req.Collateral, sig.Price, open.TransactionID),
		Attempts:    attempts,
		SubmittedAt: open.SubmittedAt,
	}
}

func (s *Service) fail(ctx context.Context, sig *signal.TradingSignal, execErr *ExecutionError, attempts int) *Result {
	if ctx != nil {
		req := s.buildRequest(sig)
		s.record(ctx, sig, req, "", execErr, attempts)
	}
	return &Result{
		SignalID: sig.ID,
		Success:  false,
		Summary:  fmt.Sprintf("execution failed: %s", execErr.Message),
		Error:    execErr,
		Attempts: attempts,
	}
}

func (s *Service) buildRequest(sig *signal.TradingSignal) venue.OpenRequest {
	return venue.OpenRequest{
		Address:    s.wallet.Address(),
		Collateral: sig.Risk.PositionSize,
		Leverage:   s.cfg.DefaultLeverage,
		Side:       string(sig.Type),
		StopLoss:   sig.Risk.StopLoss,
		TakeProfit: sig.Risk.TakeProfit,
	}
}

func (s *Service) record(ctx context.Context, sig *signal.TradingSignal, req venue.OpenRequest, txID string, execErr *ExecutionError, attempts int) {
	if s.recorder == nil {
		return
	}
	rec := Record{
		SignalID:      sig.ID,
		TransactionID: txID,
		Wallet:        req.Address,
		Side:          req.Side,
		Amount:        req.Collateral,
		Leverage:      req.Leverage,
		Price:         sig.Price,
		Success:       execErr == nil,
		Attempts:      attempts,
		ExecutedAt:    s.nowFn(),
	}
	if execErr != nil {
		rec.ErrorType = string(execErr.Type)
		rec.ErrorMessage = execErr.Message
	}
	if err := s.recorder.RecordExecution(ctx, rec); err != nil {
		logger.Errorf("execution: recording outcome for signal %s failed: %v", sig.ID, err)
	}
}

func (s *Service) cancelRequested(signalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[signalID]
}

func (s *Service) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return 3
}

// backoff returns a jittered exponential delay: base*2^(attempt-1) plus up to
// 50% random jitter.
func (s *Service) backoff(attempt int) time.Duration {
	base := time.Duration(s.cfg.BackoffBaseMs) * time.Millisecond
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}
