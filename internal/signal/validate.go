package signal

import "fmt"

// validateSignal enforces the ordering invariant between entry, stop and
// target for each side. A long must risk below entry and profit above it;
// a short the reverse.
func validateSignal(s *TradingSignal) error {
	if s.Risk.PositionSize <= 0 {
		return &ConversionError{Field: "position_size", Reason: "derived position size is not positive"}
	}
	switch s.Type {
	case TypeLong:
		if !(s.Risk.StopLoss < s.Price && s.Price < s.Risk.TakeProfit) {
			return &ConversionError{
				Field:  "risk",
				Reason: fmt.Sprintf("long requires stop < price < target, got stop=%.6f price=%.6f target=%.6f", s.Risk.StopLoss, s.Price, s.Risk.TakeProfit),
			}
		}
	case TypeShort:
		if !(s.Risk.TakeProfit < s.Price && s.Price < s.Risk.StopLoss) {
			return &ConversionError{
				Field:  "risk",
				Reason: fmt.Sprintf("short requires target < price < stop, got stop=%.6f price=%.6f target=%.6f", s.Risk.StopLoss, s.Price, s.Risk.TakeProfit),
			}
		}
	default:
		return &ConversionError{Field: "type", Reason: fmt.Sprintf("unknown signal type %q", s.Type)}
	}
	return nil
}
