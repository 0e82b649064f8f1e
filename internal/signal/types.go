// Package signal defines the canonical trading signal and its conversion from
// raw analysis-engine output.
package signal

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

type Type string

const (
	TypeLong  Type = "long"
	TypeShort Type = "short"
)

type Pattern string

const (
	PatternOversoldBounce    Pattern = "RSI_Oversold_BB_Bounce"
	PatternOverboughtReject  Pattern = "RSI_Overbought_BB_Rejection"
	PatternVolumeReversal    Pattern = "Volume_Spike_Reversal"
	PatternConfluence        Pattern = "Multi_Indicator_Confluence"
	PatternCustom            Pattern = "Custom_Pattern"
)

// KnownPattern reports whether p is one of the recognized classifications.
func KnownPattern(p Pattern) bool {
	switch p {
	case PatternOversoldBounce, PatternOverboughtReject, PatternVolumeReversal,
		PatternConfluence, PatternCustom:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// statusTransitions is the only legal mutation path for a signal after
// creation.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusExecuting, StatusExpired, StatusCancelled, StatusFailed},
	StatusExecuting: {StatusExecuted, StatusFailed, StatusCancelled},
}

// Indicators carries the raw technical readings the signal was derived from.
type Indicators struct {
	RSI         float64 `json:"rsi"`
	BBPosition  float64 `json:"bb_position"` // 0 = lower band, 1 = upper band
	VolumeRatio float64 `json:"volume_ratio"`
	Price       float64 `json:"price"`
	BBUpper     float64 `json:"bb_upper,omitempty"`
	BBLower     float64 `json:"bb_lower,omitempty"`
}

// Risk holds the derived risk parameters. Never user-supplied at creation.
type Risk struct {
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	PositionSize  float64 `json:"position_size"`
	MaxRisk       float64 `json:"max_risk"`
}

// AlgorithmMeta identifies the producing algorithm and its track record.
type AlgorithmMeta struct {
	Name              string  `json:"name"`
	Version           string  `json:"version"`
	Timeframe         string  `json:"timeframe"`
	HistoricalWinRate float64 `json:"historical_win_rate,omitempty"`
	PatternWinRate    float64 `json:"pattern_win_rate,omitempty"`
}

// TradingSignal is immutable once created; only Status moves, and only
// through Transition.
type TradingSignal struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Type       Type          `json:"type"`
	Price      float64       `json:"price"`
	Confidence float64       `json:"confidence"` // 0-100
	Pattern    Pattern       `json:"pattern"`
	Indicators Indicators    `json:"indicators"`
	Risk       Risk          `json:"risk"`
	Algorithm  AlgorithmMeta `json:"algorithm"`
	Reasoning  string        `json:"reasoning,omitempty"`
	ExpiresAt  time.Time     `json:"expires_at"`

	statusMu sync.Mutex
	status   Status
}

func (s *TradingSignal) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Transition moves the signal to a new status, enforcing the lifecycle table.
func (s *TradingSignal) Transition(to Status) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for _, allowed := range statusTransitions[s.status] {
		if allowed == to {
			s.status = to
			return nil
		}
	}
	return fmt.Errorf("illegal signal status transition %s -> %s (id=%s)", s.status, to, s.ID)
}

// Expired reports whether the signal is past its expiry regardless of status.
func (s *TradingSignal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Fingerprint hashes the fields that make two signals functionally identical:
// type, price at 4 decimals, pattern, RSI at 1 decimal and band position at
// 2 decimals. Used by the generation service's dedup cache.
func (s *TradingSignal) Fingerprint() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%.4f|%s|%.1f|%.2f",
		s.Type, s.Price, s.Pattern, s.Indicators.RSI, s.Indicators.BBPosition)
	return h.Sum64()
}

// MarshalJSON includes the current status alongside the immutable fields.
func (s *TradingSignal) MarshalJSON() ([]byte, error) {
	type alias TradingSignal
	return marshalWithStatus((*alias)(s), s.Status())
}
