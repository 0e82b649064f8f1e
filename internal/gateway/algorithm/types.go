// Package algorithm defines the contract with the market-analysis engine and
// its two implementations: the external HTTP engine and a local analyzer.
package algorithm

import (
	"context"
	"time"
)

// Request selects what the engine should analyze.
type Request struct {
	Timeframe string `json:"timeframe"`
	Mode      string `json:"mode,omitempty"`
}

// Analysis is the raw engine output before signal conversion. Direction is
// the engine's own vocabulary ("BUY"/"LONG"/"SELL"/"SHORT"/"HOLD"); stop and
// target are optional explicit levels (0 = not provided).
type Analysis struct {
	Direction   string  `json:"direction"`
	Confidence  float64 `json:"confidence"`
	Price       float64 `json:"price"`
	RSI         float64 `json:"rsi"`
	BBPosition  float64 `json:"bb_position"`
	VolumeRatio float64 `json:"volume_ratio"`
	BBUpper     float64 `json:"bb_upper,omitempty"`
	BBLower     float64 `json:"bb_lower,omitempty"`

	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	PatternHint string `json:"pattern,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`

	Timeframe      string  `json:"timeframe,omitempty"`
	WinRate        float64 `json:"win_rate,omitempty"`
	PatternWinRate float64 `json:"pattern_win_rate,omitempty"`

	GeneratedAt time.Time `json:"-"`
}

// Source is the single call contract the generation service depends on.
type Source interface {
	Name() string
	Analyze(ctx context.Context, req Request) (Analysis, error)
}
