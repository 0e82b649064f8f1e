package execution

import (
	"context"
	"fmt"
	"time"

	"adapilot/internal/signal"
)

// Check is one named pre-flight verification.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// PreflightReport aggregates every pre-execution check. CanExecute is true
// only when no check failed.
type PreflightReport struct {
	SignalID   string   `json:"signal_id"`
	Checks     []Check  `json:"checks"`
	Warnings   []string `json:"warnings,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	CanExecute bool     `json:"can_execute"`
}

func (r *PreflightReport) add(name string, passed bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: detail})
	if !passed {
		r.Errors = append(r.Errors, detail)
	}
}

func (r *PreflightReport) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Preflight runs every pre-execution check against the signal. All checks are
// evaluated even after a failure so the report names every problem at once.
func (s *Service) Preflight(ctx context.Context, sig *signal.TradingSignal) *PreflightReport {
	report := &PreflightReport{SignalID: sig.ID}
	now := s.nowFn()

	expired := sig.Expired(now)
	report.add("not_expired", !expired,
		pick(expired, fmt.Sprintf("signal expired at %s", sig.ExpiresAt.Format(time.RFC3339)), ""))

	status := sig.Status()
	report.add("status_pending", status == signal.StatusPending,
		pick(status != signal.StatusPending, fmt.Sprintf("signal status is %s, expected pending", status), ""))

	if sig.Confidence < s.cfg.MinConfidence {
		report.add("confidence", false,
			fmt.Sprintf("confidence %.1f below minimum %.1f", sig.Confidence, s.cfg.MinConfidence))
	} else {
		report.add("confidence", true, "")
	}

	size := sig.Risk.PositionSize
	constraints := s.venue.Constraints()
	minSize := maxF(s.cfg.MinPositionSize, constraints.MinTradeAmount)
	switch {
	case minSize > 0 && size < minSize:
		report.add("position_size", false,
			fmt.Sprintf("position size %.2f below venue minimum %.2f", size, minSize))
	case s.cfg.MaxPositionSize > 0 && size > s.cfg.MaxPositionSize:
		report.add("position_size", false,
			fmt.Sprintf("position size %.2f above configured maximum %.2f", size, s.cfg.MaxPositionSize))
	default:
		report.add("position_size", true, "")
	}

	lev := s.cfg.DefaultLeverage
	maxLev := s.cfg.MaxLeverage
	if constraints.MaxLeverage > 0 && (maxLev <= 0 || constraints.MaxLeverage < maxLev) {
		maxLev = constraints.MaxLeverage
	}
	if maxLev > 0 && lev > maxLev {
		report.add("leverage", false,
			fmt.Sprintf("leverage %.1fx exceeds maximum %.1fx", lev, maxLev))
	} else {
		report.add("leverage", true, "")
	}

	required := size * (1 + s.cfg.EstimatedFeePct)
	balance, err := s.wallet.Balance(ctx)
	switch {
	case err != nil:
		report.add("balance", false, fmt.Sprintf("cannot read wallet balance: %v", err))
	case balance.Available < required:
		report.add("balance", false,
			fmt.Sprintf("insufficient balance: need %.2f ADA (size %.2f + fees), have %.2f", required, size, balance.Available))
	default:
		report.add("balance", true, "")
		if balance.Available < required*2 {
			report.warn(fmt.Sprintf("balance %.2f ADA leaves little headroom over required %.2f", balance.Available, required))
		}
	}

	report.CanExecute = len(report.Errors) == 0
	return report
}

// classifyPreflight maps a failed report onto the error taxonomy. Balance
// problems get their own class so callers can distinguish "top up the wallet"
// from "the signal is bad".
func classifyPreflight(report *PreflightReport) *ExecutionError {
	for _, c := range report.Checks {
		if !c.Passed && c.Name == "balance" {
			return balanceErr("%s", c.Detail)
		}
	}
	if len(report.Errors) > 0 {
		return validationErr("%s", report.Errors[0])
	}
	return validationErr("preflight failed")
}

func pick(cond bool, whenTrue, whenFalse string) string {
	if cond {
		return whenTrue
	}
	return whenFalse
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
