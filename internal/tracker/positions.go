package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/gateway/notifier"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/logger"
	"adapilot/internal/scheduler"
)

const pnlHistoryLimit = 120

// PnLPoint is one sampled unrealized P&L reading for a position.
type PnLPoint struct {
	At    time.Time `json:"at"`
	Price float64   `json:"price"`
	PnL   float64   `json:"pnl"`
}

// MonitoredPosition is a venue position enriched with sampled history.
type MonitoredPosition struct {
	venue.Position
	Wallet     string     `json:"wallet"`
	PnLHistory []PnLPoint `json:"pnl_history,omitempty"`
}

// positionMonitor re-fetches open positions for the monitored wallets and
// raises alerts when price approaches liquidation.
type positionMonitor struct {
	cfg    config.TrackerConfig
	venue  venue.Venue
	notify notifier.TextNotifier

	mu       sync.Mutex
	current  map[string]*MonitoredPosition // keyed by position id
	alerted  map[string]time.Time          // last liquidation alert per position
	lastScan time.Time
	lastErr  string
	nowFn    func() time.Time
}

func newPositionMonitor(cfg config.TrackerConfig, v venue.Venue, notify notifier.TextNotifier) *positionMonitor {
	return &positionMonitor{
		cfg:     cfg,
		venue:   v,
		notify:  notify,
		current: make(map[string]*MonitoredPosition),
		alerted: make(map[string]time.Time),
		nowFn:   time.Now,
	}
}

func (m *positionMonitor) run(ctx context.Context) {
	interval := time.Duration(m.cfg.PositionIntervalSeconds) * time.Second
	sched := scheduler.NewIntervalScheduler(ctx, "position-monitor", interval)
	sched.RunImmediately = true
	sched.Start(func() { m.scan(ctx) })
}

func (m *positionMonitor) scan(ctx context.Context) {
	now := m.nowFn()
	seen := make(map[string]bool)
	fetched := make(map[string]bool) // wallets whose fetch succeeded

	for _, wallet := range m.cfg.MonitoredWallets {
		positions, err := m.venue.GetPositions(ctx, wallet)
		if err != nil {
			m.mu.Lock()
			m.lastErr = err.Error()
			m.mu.Unlock()
			logger.Warnf("tracker: fetching positions for %s failed: %v", wallet, err)
			continue
		}
		fetched[wallet] = true
		for i := range positions {
			p := positions[i]
			seen[p.ID] = true
			m.update(wallet, p, now)
		}
	}

	// Closed positions disappear from the feed; drop them, but only for
	// wallets whose fetch succeeded this cycle.
	m.mu.Lock()
	m.lastScan = now
	for id, mp := range m.current {
		if fetched[mp.Wallet] && !seen[id] {
			delete(m.current, id)
			delete(m.alerted, id)
		}
	}
	m.mu.Unlock()
}

func (m *positionMonitor) update(wallet string, p venue.Position, now time.Time) {
	if p.UnrealizedPnL == 0 && p.EntryPrice > 0 && p.CurrentPrice > 0 {
		p.UnrealizedPnL = computePnL(p)
	}

	m.mu.Lock()
	mp, ok := m.current[p.ID]
	if !ok {
		mp = &MonitoredPosition{Wallet: wallet}
		m.current[p.ID] = mp
	}
	mp.Position = p
	mp.Wallet = wallet
	mp.PnLHistory = append(mp.PnLHistory, PnLPoint{At: now, Price: p.CurrentPrice, PnL: p.UnrealizedPnL})
	if len(mp.PnLHistory) > pnlHistoryLimit {
		mp.PnLHistory = mp.PnLHistory[len(mp.PnLHistory)-pnlHistoryLimit:]
	}
	shouldAlert := m.liquidationCloseLocked(p, now)
	m.mu.Unlock()

	if shouldAlert {
		m.sendLiquidationAlert(wallet, p)
	}
}

// computePnL recomputes unrealized P&L from entry, current price, collateral
// and leverage when the venue omits it.
func computePnL(p venue.Position) float64 {
	move := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	if p.Side == "short" {
		move = -move
	}
	return p.CollateralAmount * p.LeverageFactor * move
}

// liquidationCloseLocked reports whether price is within the configured
// fraction of the liquidation price, rate-limited to one alert per position
// per hour. Caller holds m.mu.
func (m *positionMonitor) liquidationCloseLocked(p venue.Position, now time.Time) bool {
	if p.LiquidationPrice <= 0 || p.CurrentPrice <= 0 {
		return false
	}
	distance := math.Abs(p.CurrentPrice-p.LiquidationPrice) / p.CurrentPrice
	if distance > m.cfg.LiquidationAlertPct {
		return false
	}
	if last, ok := m.alerted[p.ID]; ok && now.Sub(last) < time.Hour {
		return false
	}
	m.alerted[p.ID] = now
	return true
}

func (m *positionMonitor) sendLiquidationAlert(wallet string, p venue.Position) {
	msg := notifier.StructuredMessage{
		Icon:  "⚠️",
		Title: "Liquidation risk",
		Sections: []notifier.MessageSection{{
			Title: "Position " + p.ID,
			Lines: []string{
				fmt.Sprintf("wallet: %s", wallet),
				fmt.Sprintf("side: %s  collateral: %.2f ADA  leverage: %.1fx", p.Side, p.CollateralAmount, p.LeverageFactor),
				fmt.Sprintf("price: %.4f  liquidation: %.4f", p.CurrentPrice, p.LiquidationPrice),
				fmt.Sprintf("unrealized pnl: %.2f ADA", p.UnrealizedPnL),
			},
		}},
		Timestamp: m.nowFn(),
	}
	if err := m.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("tracker: sending liquidation alert for %s failed: %v", p.ID, err)
	}
}

// Positions returns the currently monitored positions.
func (t *Tracker) Positions() []MonitoredPosition {
	m := t.positions
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MonitoredPosition, 0, len(m.current))
	for _, mp := range m.current {
		cp := *mp
		cp.PnLHistory = append([]PnLPoint(nil), mp.PnLHistory...)
		out = append(out, cp)
	}
	return out
}

// ScanPositionsOnce runs a single synchronous position scan.
func (t *Tracker) ScanPositionsOnce(ctx context.Context) {
	t.positions.scan(ctx)
}
