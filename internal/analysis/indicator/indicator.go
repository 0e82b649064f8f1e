// Package indicator computes the technical snapshot (RSI, Bollinger Bands,
// volume ratio) that the local analysis engine feeds into signal conversion.
package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"adapilot/internal/market"
)

// Settings describes the minimal configuration for a snapshot.
type Settings struct {
	RSIPeriod    int
	BBPeriod     int
	BBStdDev     float64
	VolumePeriod int
}

func (s Settings) withDefaults() Settings {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.BBPeriod <= 0 {
		s.BBPeriod = 20
	}
	if s.BBStdDev <= 0 {
		s.BBStdDev = 2
	}
	if s.VolumePeriod <= 0 {
		s.VolumePeriod = 20
	}
	return s
}

// Snapshot holds the latest indicator values for one symbol+interval.
type Snapshot struct {
	Price       float64 `json:"price"`
	RSI         float64 `json:"rsi"`
	BBUpper     float64 `json:"bb_upper"`
	BBLower     float64 `json:"bb_lower"`
	BBPosition  float64 `json:"bb_position"` // 0 = lower band, 1 = upper band
	VolumeRatio float64 `json:"volume_ratio"`
}

// Compute derives a Snapshot from closed candles (oldest first). It needs
// at least max(rsi, bb, volume)+1 candles; fewer is an error, not a guess.
func Compute(candles []market.Candle, cfg Settings) (Snapshot, error) {
	cfg = cfg.withDefaults()
	need := maxInt(cfg.RSIPeriod, cfg.BBPeriod, cfg.VolumePeriod) + 1
	if len(candles) < need {
		return Snapshot{}, fmt.Errorf("need at least %d candles, got %d", need, len(candles))
	}

	closes := market.Closes(candles)
	volumes := market.Volumes(candles)
	last := len(closes) - 1

	rsi := talib.Rsi(closes, cfg.RSIPeriod)
	upper, _, lower := talib.BBands(closes, cfg.BBPeriod, cfg.BBStdDev, cfg.BBStdDev, talib.SMA)
	volSMA := talib.Sma(volumes, cfg.VolumePeriod)

	snap := Snapshot{
		Price:   closes[last],
		RSI:     rsi[last],
		BBUpper: upper[last],
		BBLower: lower[last],
	}
	if width := snap.BBUpper - snap.BBLower; width > 0 {
		snap.BBPosition = (snap.Price - snap.BBLower) / width
	} else {
		snap.BBPosition = 0.5
	}
	snap.BBPosition = clamp01(snap.BBPosition)
	if volSMA[last] > 0 {
		snap.VolumeRatio = volumes[last] / volSMA[last]
	} else {
		snap.VolumeRatio = 1
	}

	if !finite(snap.RSI) || !finite(snap.Price) || !finite(snap.VolumeRatio) {
		return Snapshot{}, fmt.Errorf("indicator series produced non-finite values")
	}
	return snap, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func maxInt(vals ...int) int {
	out := 0
	for _, v := range vals {
		if v > out {
			out = v
		}
	}
	return out
}
