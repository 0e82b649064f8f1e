package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"adapilot/internal/config"
	"adapilot/internal/gateway/algorithm"
	"adapilot/internal/pkg/convert"
)

// ConversionError marks engine output that cannot be turned into a signal.
// Conversion fails closed: a malformed analysis never yields a partial signal.
type ConversionError struct {
	Field  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("signal conversion rejected: %s (%s)", e.Reason, e.Field)
}

// Pattern classification thresholds, matching the analysis engine's own
// reversal model.
const (
	rsiOversold     = 35.0
	rsiOverbought   = 65.0
	bbReversalDist  = 0.2
	volumeSpikeMin  = 1.4
)

// Converter turns raw engine analyses into fully-populated trading signals.
type Converter struct {
	cfg   config.ConverterConfig
	nowFn func() time.Time
}

func NewConverter(cfg config.ConverterConfig) *Converter {
	return &Converter{cfg: cfg, nowFn: time.Now}
}

// Convert maps an analysis to a trading signal. A HOLD direction returns
// (nil, nil): no signal and no error.
func (c *Converter) Convert(a algorithm.Analysis) (*TradingSignal, error) {
	sigType, hold, err := directionToType(a.Direction)
	if err != nil {
		return nil, err
	}
	if hold {
		return nil, nil
	}
	if err := c.sanity(a); err != nil {
		return nil, err
	}

	now := c.nowFn()
	pattern := classifyPattern(sigType, a)
	risk, err := c.deriveRisk(sigType, a)
	if err != nil {
		return nil, err
	}

	s := &TradingSignal{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Type:       sigType,
		Price:      a.Price,
		Confidence: a.Confidence,
		Pattern:    pattern,
		Indicators: Indicators{
			RSI:         a.RSI,
			BBPosition:  a.BBPosition,
			VolumeRatio: a.VolumeRatio,
			Price:       a.Price,
			BBUpper:     a.BBUpper,
			BBLower:     a.BBLower,
		},
		Risk: risk,
		Algorithm: AlgorithmMeta{
			Name:              c.algorithmName(),
			Version:           c.algorithmVersion(),
			Timeframe:         a.Timeframe,
			HistoricalWinRate: a.WinRate,
			PatternWinRate:    a.PatternWinRate,
		},
		Reasoning: c.buildReasoning(sigType, pattern, a, risk),
		ExpiresAt: now.Add(c.expiry()),
		status:    StatusPending,
	}
	if err := validateSignal(s); err != nil {
		return nil, err
	}
	return s, nil
}

func directionToType(direction string) (Type, bool, error) {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "BUY", "LONG":
		return TypeLong, false, nil
	case "SELL", "SHORT":
		return TypeShort, false, nil
	case "HOLD", "NEUTRAL", "WAIT", "":
		return "", true, nil
	default:
		return "", false, &ConversionError{Field: "direction", Reason: fmt.Sprintf("unrecognized direction %q", direction)}
	}
}

func (c *Converter) sanity(a algorithm.Analysis) error {
	if !convert.IsFinite(a.Price) || a.Price <= 0 {
		return &ConversionError{Field: "price", Reason: fmt.Sprintf("price %v is not a positive finite number", a.Price)}
	}
	if !convert.IsFinite(a.Confidence) || a.Confidence < 0 || a.Confidence > 100 {
		return &ConversionError{Field: "confidence", Reason: fmt.Sprintf("confidence %v outside [0,100]", a.Confidence)}
	}
	if !convert.IsFinite(a.RSI) || a.RSI < 0 || a.RSI > 100 {
		return &ConversionError{Field: "rsi", Reason: fmt.Sprintf("rsi %v outside [0,100]", a.RSI)}
	}
	if !convert.IsFinite(a.BBPosition) {
		return &ConversionError{Field: "bb_position", Reason: "bb_position is not finite"}
	}
	if !convert.IsFinite(a.VolumeRatio) || a.VolumeRatio < 0 {
		return &ConversionError{Field: "volume_ratio", Reason: fmt.Sprintf("volume_ratio %v is negative or not finite", a.VolumeRatio)}
	}
	return nil
}

// classifyPattern prefers the engine's own label when it matches a known
// classification, then falls back to threshold rules.
func classifyPattern(t Type, a algorithm.Analysis) Pattern {
	if hint := Pattern(strings.TrimSpace(a.PatternHint)); hint != "" && KnownPattern(hint) {
		return hint
	}
	switch t {
	case TypeLong:
		if a.RSI < rsiOversold && a.BBPosition < bbReversalDist {
			return PatternOversoldBounce
		}
		if a.VolumeRatio >= volumeSpikeMin && a.BBPosition < bbReversalDist {
			return PatternVolumeReversal
		}
	case TypeShort:
		if a.RSI > rsiOverbought && a.BBPosition > 1-bbReversalDist {
			return PatternOverboughtReject
		}
		if a.VolumeRatio >= volumeSpikeMin && a.BBPosition > 1-bbReversalDist {
			return PatternVolumeReversal
		}
	}
	if a.VolumeRatio >= volumeSpikeMin && (a.RSI < rsiOversold || a.RSI > rsiOverbought) {
		return PatternConfluence
	}
	return PatternCustom
}

// deriveRisk computes position size, stop and target. Explicit engine levels
// win; otherwise percentages scale with confidence. decimal arithmetic keeps
// the derived prices reproducible across platforms.
func (c *Converter) deriveRisk(t Type, a algorithm.Analysis) (Risk, error) {
	price := decimal.NewFromFloat(a.Price)

	// size = base * clamp(0.8 + confidence/250, 0.8, 1.5), capped at max.
	scale := 0.8 + a.Confidence/250
	if scale < 0.8 {
		scale = 0.8
	}
	if scale > 1.5 {
		scale = 1.5
	}
	size := decimal.NewFromFloat(c.basePositionSize()).Mul(decimal.NewFromFloat(scale))
	maxSize := decimal.NewFromFloat(c.maxPositionSize())
	if maxSize.IsPositive() && size.GreaterThan(maxSize) {
		size = maxSize
	}

	// Higher confidence tightens the stop and widens the target.
	confFactor := (a.Confidence - 50) / 100 // -0.5 .. 0.5
	stopPct := c.baseStopLossPct() * (1 - 0.3*confFactor)
	targetPct := c.baseTakeProfitPct() * (1 + 0.3*confFactor)

	var stop, target decimal.Decimal
	switch {
	case a.StopLoss > 0 && a.TakeProfit > 0:
		stop = decimal.NewFromFloat(a.StopLoss)
		target = decimal.NewFromFloat(a.TakeProfit)
		stopPct = price.Sub(stop).Div(price).Abs().InexactFloat64()
		targetPct = target.Sub(price).Div(price).Abs().InexactFloat64()
	case t == TypeLong:
		stop = price.Mul(decimal.NewFromFloat(1 - stopPct))
		target = price.Mul(decimal.NewFromFloat(1 + targetPct))
	default:
		stop = price.Mul(decimal.NewFromFloat(1 + stopPct))
		target = price.Mul(decimal.NewFromFloat(1 - targetPct))
	}

	sizeF, _ := size.Round(2).Float64()
	stopF, _ := stop.Round(6).Float64()
	targetF, _ := target.Round(6).Float64()
	risk := Risk{
		StopLoss:      stopF,
		TakeProfit:    targetF,
		StopLossPct:   stopPct,
		TakeProfitPct: targetPct,
		PositionSize:  sizeF,
		MaxRisk:       roundTo(sizeF*stopPct, 2),
	}
	return risk, nil
}

func (c *Converter) buildReasoning(t Type, p Pattern, a algorithm.Analysis, r Risk) string {
	if strings.TrimSpace(a.Reasoning) != "" {
		return strings.TrimSpace(a.Reasoning)
	}
	side := "long"
	if t == TypeShort {
		side = "short"
	}
	return fmt.Sprintf("%s %s: RSI %.1f, band position %.2f, volume %.1fx average; size %.2f ADA, stop %.4f, target %.4f",
		p, side, a.RSI, a.BBPosition, a.VolumeRatio, r.PositionSize, r.StopLoss, r.TakeProfit)
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func (c *Converter) basePositionSize() float64 {
	if c.cfg.BasePositionSize > 0 {
		return c.cfg.BasePositionSize
	}
	return 50
}

func (c *Converter) maxPositionSize() float64 {
	return c.cfg.MaxPositionSize
}

func (c *Converter) baseStopLossPct() float64 {
	if c.cfg.BaseStopLossPct > 0 {
		return c.cfg.BaseStopLossPct
	}
	return 0.05
}

func (c *Converter) baseTakeProfitPct() float64 {
	if c.cfg.BaseTakeProfitPct > 0 {
		return c.cfg.BaseTakeProfitPct
	}
	return 0.10
}

func (c *Converter) expiry() time.Duration {
	if c.cfg.ExpiryMinutes > 0 {
		return time.Duration(c.cfg.ExpiryMinutes) * time.Minute
	}
	return 30 * time.Minute
}

func (c *Converter) algorithmName() string {
	if c.cfg.AlgorithmName != "" {
		return c.cfg.AlgorithmName
	}
	return "ADA Custom Algorithm"
}

func (c *Converter) algorithmVersion() string {
	if c.cfg.AlgorithmVersion != "" {
		return c.cfg.AlgorithmVersion
	}
	return "1.0"
}
