package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapilot/internal/config"
	"adapilot/internal/gateway/algorithm"
)

func testConverter() *Converter {
	c := NewConverter(config.ConverterConfig{
		BasePositionSize:  50,
		MaxPositionSize:   200,
		BaseStopLossPct:   0.05,
		BaseTakeProfitPct: 0.10,
		ExpiryMinutes:     30,
	})
	c.nowFn = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestConvertOversoldBounce(t *testing.T) {
	c := testConverter()
	s, err := c.Convert(algorithm.Analysis{
		Direction:   "BUY",
		Confidence:  87,
		Price:       0.7234,
		RSI:         28.5,
		BBPosition:  0.15,
		VolumeRatio: 1.8,
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, TypeLong, s.Type)
	assert.Equal(t, PatternOversoldBounce, s.Pattern)
	assert.Equal(t, StatusPending, s.Status())
	assert.NotEmpty(t, s.ID)

	// Confidence 87 on base 50 scales to roughly 57, well inside [40, 75].
	assert.GreaterOrEqual(t, s.Risk.PositionSize, 40.0)
	assert.LessOrEqual(t, s.Risk.PositionSize, 75.0)

	assert.Less(t, s.Risk.StopLoss, s.Price)
	assert.Greater(t, s.Risk.TakeProfit, s.Price)
	assert.Equal(t, s.Timestamp.Add(30*time.Minute), s.ExpiresAt)
	assert.NotEmpty(t, s.Reasoning)
}

func TestConvertOverboughtRejection(t *testing.T) {
	c := testConverter()
	s, err := c.Convert(algorithm.Analysis{
		Direction:   "SELL",
		Confidence:  72,
		Price:       0.8912,
		RSI:         71.2,
		BBPosition:  0.93,
		VolumeRatio: 1.5,
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, TypeShort, s.Type)
	assert.Equal(t, PatternOverboughtReject, s.Pattern)
	assert.Greater(t, s.Risk.StopLoss, s.Price)
	assert.Less(t, s.Risk.TakeProfit, s.Price)
}

func TestConvertHoldYieldsNothing(t *testing.T) {
	c := testConverter()
	for _, direction := range []string{"HOLD", "hold", "NEUTRAL", ""} {
		s, err := c.Convert(algorithm.Analysis{Direction: direction, Price: 0.72, Confidence: 55})
		assert.NoError(t, err, direction)
		assert.Nil(t, s, direction)
	}
}

func TestConvertRejectsMalformedInput(t *testing.T) {
	c := testConverter()
	cases := []struct {
		name string
		a    algorithm.Analysis
	}{
		{"unknown direction", algorithm.Analysis{Direction: "SIDEWAYS", Price: 0.72, Confidence: 80}},
		{"zero price", algorithm.Analysis{Direction: "BUY", Price: 0, Confidence: 80}},
		{"negative price", algorithm.Analysis{Direction: "BUY", Price: -1, Confidence: 80}},
		{"confidence above 100", algorithm.Analysis{Direction: "BUY", Price: 0.72, Confidence: 120}},
		{"rsi out of range", algorithm.Analysis{Direction: "BUY", Price: 0.72, Confidence: 80, RSI: 140}},
		{"negative volume ratio", algorithm.Analysis{Direction: "BUY", Price: 0.72, Confidence: 80, RSI: 30, VolumeRatio: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := c.Convert(tc.a)
			assert.Nil(t, s)
			var convErr *ConversionError
			assert.ErrorAs(t, err, &convErr)
		})
	}
}

func TestConvertHonorsExplicitLevels(t *testing.T) {
	c := testConverter()
	s, err := c.Convert(algorithm.Analysis{
		Direction:   "BUY",
		Confidence:  80,
		Price:       0.7000,
		RSI:         30,
		BBPosition:  0.1,
		VolumeRatio: 1.6,
		StopLoss:    0.6650,
		TakeProfit:  0.7700,
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.InDelta(t, 0.6650, s.Risk.StopLoss, 1e-9)
	assert.InDelta(t, 0.7700, s.Risk.TakeProfit, 1e-9)
	assert.InDelta(t, 0.05, s.Risk.StopLossPct, 1e-6)
	assert.InDelta(t, 0.10, s.Risk.TakeProfitPct, 1e-6)
}

func TestConvertRejectsInvertedExplicitLevels(t *testing.T) {
	c := testConverter()
	s, err := c.Convert(algorithm.Analysis{
		Direction:   "BUY",
		Confidence:  80,
		Price:       0.7000,
		RSI:         30,
		BBPosition:  0.1,
		VolumeRatio: 1.6,
		StopLoss:    0.7700, // stop above entry on a long
		TakeProfit:  0.6650,
	})
	assert.Nil(t, s)
	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestConvertCapsPositionSize(t *testing.T) {
	c := NewConverter(config.ConverterConfig{
		BasePositionSize:  500,
		MaxPositionSize:   200,
		BaseStopLossPct:   0.05,
		BaseTakeProfitPct: 0.10,
	})
	s, err := c.Convert(algorithm.Analysis{
		Direction: "BUY", Confidence: 95, Price: 0.72, RSI: 28, BBPosition: 0.1, VolumeRatio: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200.0, s.Risk.PositionSize)
}

func TestConvertHigherConfidenceTightensStop(t *testing.T) {
	c := testConverter()
	base := algorithm.Analysis{Direction: "BUY", Price: 0.72, RSI: 28, BBPosition: 0.1, VolumeRatio: 1.6}

	low := base
	low.Confidence = 60
	high := base
	high.Confidence = 95

	lowSig, err := c.Convert(low)
	require.NoError(t, err)
	highSig, err := c.Convert(high)
	require.NoError(t, err)

	assert.Less(t, highSig.Risk.StopLossPct, lowSig.Risk.StopLossPct)
	assert.Greater(t, highSig.Risk.TakeProfitPct, lowSig.Risk.TakeProfitPct)
	assert.Greater(t, highSig.Risk.PositionSize, lowSig.Risk.PositionSize)
}

func TestClassifyPatternPrefersKnownHint(t *testing.T) {
	a := algorithm.Analysis{
		PatternHint: string(PatternVolumeReversal),
		RSI:         28, BBPosition: 0.1, VolumeRatio: 1.0,
	}
	assert.Equal(t, PatternVolumeReversal, classifyPattern(TypeLong, a))

	a.PatternHint = "Totally_Made_Up"
	assert.Equal(t, PatternOversoldBounce, classifyPattern(TypeLong, a))
}
