package manager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"adapilot/internal/generator"
)

type HealthLevel int

const (
	Healthy HealthLevel = iota
	Degraded
	Unhealthy
)

func (l HealthLevel) String() string {
	switch l {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

func (l HealthLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// ComponentHealth is one component's self-assessment.
type ComponentHealth struct {
	Name   string      `json:"name"`
	Level  HealthLevel `json:"level"`
	Detail string      `json:"detail,omitempty"`
}

// HealthSnapshot is the aggregated health across the pipeline; Overall is the
// worst of the parts.
type HealthSnapshot struct {
	Overall    HealthLevel       `json:"overall"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// pendingBacklogDegraded is the pending-transaction count past which the
// tracker reports degraded.
const pendingBacklogDegraded = 10

// Execution reports degraded once the recent success rate drops below half,
// with enough attempts that the ratio means something.
const (
	successRateWindow    = 6 * time.Hour
	successRateMinSample = 5
	successRateDegraded  = 0.5
)

// Health probes all components concurrently and aggregates the result.
func (m *Manager) Health(ctx context.Context) HealthSnapshot {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results := make([]ComponentHealth, 5)
	g, gctx := errgroup.WithContext(probeCtx)

	g.Go(func() error {
		results[0] = m.generatorHealth()
		return nil
	})
	g.Go(func() error {
		results[1] = m.venueHealth(gctx)
		return nil
	})
	g.Go(func() error {
		results[2] = m.walletHealth(gctx)
		return nil
	})
	g.Go(func() error {
		results[3] = m.trackerHealth()
		return nil
	})
	g.Go(func() error {
		results[4] = m.executionHealth(gctx)
		return nil
	})
	g.Wait() // probes report through results, never through errors

	overall := Healthy
	for _, c := range results {
		if c.Level > overall {
			overall = c.Level
		}
	}
	return HealthSnapshot{Overall: overall, Components: results, CheckedAt: time.Now()}
}

func (m *Manager) generatorHealth() ComponentHealth {
	st := m.generator.Status()
	out := ComponentHealth{Name: "signal-generator", Level: Healthy}
	switch {
	case st.Health == generator.HealthError:
		out.Level = Unhealthy
		out.Detail = "repeated polling failures"
	case !st.Running:
		out.Level = Degraded
		out.Detail = "polling loop not running"
	}
	return out
}

func (m *Manager) venueHealth(ctx context.Context) ComponentHealth {
	out := ComponentHealth{Name: "venue", Level: Healthy}
	if _, err := m.venue.GetPrice(ctx, ""); err != nil {
		out.Level = Unhealthy
		out.Detail = err.Error()
	}
	return out
}

func (m *Manager) walletHealth(ctx context.Context) ComponentHealth {
	out := ComponentHealth{Name: "wallet", Level: Healthy}
	if !m.wallet.Connected(ctx) {
		out.Level = Unhealthy
		out.Detail = "wallet not reachable"
	}
	return out
}

func (m *Manager) trackerHealth() ComponentHealth {
	out := ComponentHealth{Name: "transaction-tracker", Level: Healthy}
	if pending := m.tracker.PendingCount(); pending > pendingBacklogDegraded {
		out.Level = Degraded
		out.Detail = "pending transaction backlog"
	}
	return out
}

func (m *Manager) executionHealth(ctx context.Context) ComponentHealth {
	out := ComponentHealth{Name: "execution", Level: Healthy}
	if m.stats == nil {
		return out
	}
	rate, total, err := m.stats.SuccessRate(ctx, successRateWindow)
	switch {
	case err != nil:
		out.Level = Degraded
		out.Detail = fmt.Sprintf("cannot read execution log: %v", err)
	case total >= successRateMinSample && rate < successRateDegraded:
		out.Level = Degraded
		out.Detail = fmt.Sprintf("success rate %.0f%% over last %d executions", rate*100, total)
	}
	return out
}
