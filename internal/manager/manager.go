// Package manager composes the pipeline: it chains validation and execution,
// registers transactions with the tracker, aggregates health, and optionally
// auto-executes signals passing the policy filter.
package manager

import (
	"context"
	"fmt"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/execution"
	"adapilot/internal/gateway/notifier"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/gateway/wallet"
	"adapilot/internal/generator"
	"adapilot/internal/logger"
	"adapilot/internal/signal"
	"adapilot/internal/tracker"
)

// ExecutionStats exposes the audit-log aggregate the health probe reads.
type ExecutionStats interface {
	SuccessRate(ctx context.Context, window time.Duration) (float64, int, error)
}

type Manager struct {
	cfg       config.ManagerConfig
	generator *generator.Service
	exec      *execution.Service
	tracker   *tracker.Tracker
	venue     venue.Venue
	wallet    wallet.Wallet
	notify    notifier.TextNotifier
	stats     ExecutionStats
	policy    *PolicyWatcher
}

func New(
	cfg config.ManagerConfig,
	gen *generator.Service,
	exec *execution.Service,
	tr *tracker.Tracker,
	v venue.Venue,
	w wallet.Wallet,
	notify notifier.TextNotifier,
	stats ExecutionStats,
	policy *PolicyWatcher,
) *Manager {
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Manager{
		cfg:       cfg,
		generator: gen,
		exec:      exec,
		tracker:   tr,
		venue:     v,
		wallet:    w,
		notify:    notify,
		stats:     stats,
		policy:    policy,
	}
}

// Start wires the listener plumbing: signal notifications, transaction
// notifications, and the auto-execute subscription.
func (m *Manager) Start(ctx context.Context) error {
	m.generator.Subscribe("notify", m.notifySignal)
	m.tracker.SubscribeAll("notify", m.notifyTransaction)

	if m.cfg.AutoExecute {
		if m.policy == nil {
			return fmt.Errorf("auto-execution enabled but no policy watcher configured")
		}
		if err := m.policy.Watch(); err != nil {
			return err
		}
		m.generator.Subscribe("auto-execute", func(sig *signal.TradingSignal) {
			m.autoExecute(ctx, sig)
		})
		logger.Infof("manager: auto-execution enabled, policy file %s", m.policy.path)
	}
	return nil
}

func (m *Manager) Stop() {
	if m.policy != nil {
		m.policy.Close()
	}
}

// ExecuteSignal chains validation and execution; on success the execution
// service has already registered the transaction with the tracker.
func (m *Manager) ExecuteSignal(ctx context.Context, sig *signal.TradingSignal) *execution.Result {
	res := m.exec.Execute(ctx, sig)
	if !res.Success && res.Error != nil {
		logger.Warnf("manager: execution of signal %s failed (%s): %s", res.SignalID, res.Error.Type, res.Error.Message)
	}
	m.notifyExecution(res, sig)
	return res
}

// ExecuteByID resolves a cached signal and executes it.
func (m *Manager) ExecuteByID(ctx context.Context, signalID string) (*execution.Result, error) {
	sig, ok := m.generator.Signal(signalID)
	if !ok {
		return nil, fmt.Errorf("signal %s not found or expired from cache", signalID)
	}
	return m.ExecuteSignal(ctx, sig), nil
}

// CancelExecution forwards a cancellation request; honored only before the
// venue call is sent.
func (m *Manager) CancelExecution(signalID string) bool {
	return m.exec.Cancel(signalID)
}

// Preflight exposes validation without execution, for dry-run endpoints.
func (m *Manager) Preflight(ctx context.Context, signalID string) (*execution.PreflightReport, error) {
	sig, ok := m.generator.Signal(signalID)
	if !ok {
		return nil, fmt.Errorf("signal %s not found or expired from cache", signalID)
	}
	return m.exec.Preflight(ctx, sig), nil
}

// autoExecute applies the policy filter, then runs the normal workflow. The
// execution service re-validates regardless of the filter outcome.
func (m *Manager) autoExecute(ctx context.Context, sig *signal.TradingSignal) {
	policy := m.policy.Policy()
	ok, reason := policy.Allows(sig, m.wallet.Address())
	if !ok {
		logger.Infof("manager: signal %s not auto-executed: %s", sig.ID, reason)
		return
	}
	logger.Infof("manager: auto-executing signal %s (confidence=%.0f pattern=%s)", sig.ID, sig.Confidence, sig.Pattern)
	m.ExecuteSignal(ctx, sig)
}
