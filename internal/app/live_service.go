package app

import (
	"context"

	"adapilot/internal/execution"
	"adapilot/internal/generator"
	"adapilot/internal/manager"
	"adapilot/internal/signal"
	"adapilot/internal/store/execlog"
	"adapilot/internal/store/signallog"
	"adapilot/internal/tracker"
)

// liveService adapts the composed pipeline to the HTTP facade.
type liveService struct {
	generator *generator.Service
	manager   *manager.Manager
	tracker   *tracker.Tracker
	execlog   *execlog.Store
	signallog *signallog.Store
}

func (s *liveService) GeneratorStatus() generator.StatusReport {
	return s.generator.Status()
}

func (s *liveService) Health(ctx context.Context) manager.HealthSnapshot {
	return s.manager.Health(ctx)
}

func (s *liveService) Signals() []*signal.TradingSignal {
	return s.generator.Signals()
}

func (s *liveService) Signal(id string) (*signal.TradingSignal, bool) {
	return s.generator.Signal(id)
}

func (s *liveService) TriggerPoll(ctx context.Context) generator.Outcome {
	outcome, _ := s.generator.RunCycle(ctx)
	return outcome
}

func (s *liveService) Execute(ctx context.Context, signalID string) (*execution.Result, error) {
	return s.manager.ExecuteByID(ctx, signalID)
}

func (s *liveService) PreflightSignal(ctx context.Context, signalID string) (*execution.PreflightReport, error) {
	return s.manager.Preflight(ctx, signalID)
}

func (s *liveService) Cancel(signalID string) bool {
	return s.manager.CancelExecution(signalID)
}

func (s *liveService) Transactions() []tracker.TransactionRecord {
	return s.tracker.History()
}

func (s *liveService) Transaction(id string) (tracker.TransactionRecord, bool) {
	return s.tracker.Record(id)
}

func (s *liveService) Positions() []tracker.MonitoredPosition {
	return s.tracker.Positions()
}

func (s *liveService) RecentExecutions(ctx context.Context, limit int) ([]execlog.Entry, error) {
	return s.execlog.Recent(ctx, limit)
}

func (s *liveService) RecentSignalLog(ctx context.Context, limit int) ([]signallog.Entry, error) {
	return s.signallog.Recent(ctx, limit)
}
