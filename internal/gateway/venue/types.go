// Package venue defines a common abstraction for perpetuals trading venues so
// the pipeline can target different backends without changing execution logic.
package venue

import (
	"errors"
	"fmt"
	"time"
)

// Position represents an open perpetuals position as reported by the venue.
type Position struct {
	ID               string    // Venue-specific position ID
	Asset            string    // e.g. "ADA"
	Side             string    // "long" or "short"
	CollateralAmount float64   // Collateral locked, in asset units
	LeverageFactor   float64   // Position leverage
	EntryPrice       float64   // Average entry price
	CurrentPrice     float64   // Venue-reported mark price
	LiquidationPrice float64   // Price at which the position is liquidated
	StopLoss         float64   // 0 if not set
	TakeProfit       float64   // 0 if not set
	UnrealizedPnL    float64   // In quote currency
	OpenedAt         time.Time
	UpdatedAt        time.Time
}

// Balance is the wallet balance as the venue sees it.
type Balance struct {
	Address   string
	Available float64
	Total     float64
	UpdatedAt time.Time
}

// PriceQuote is the current venue price for an asset.
type PriceQuote struct {
	Asset     string
	Last      float64
	UpdatedAt time.Time
}

// OpenRequest contains parameters for opening a position.
type OpenRequest struct {
	Address    string  // Wallet address the position belongs to
	Asset      string  // e.g. "ADA"
	Collateral float64 // Collateral in asset units
	Leverage   float64
	Side       string  // "long" or "short"
	StopLoss   float64 // 0 to omit
	TakeProfit float64 // 0 to omit
}

// OpenResult is the venue acknowledgement of a submitted open.
type OpenResult struct {
	TransactionID string
	SubmittedAt   time.Time
}

// TransactionStatus is the venue-side lifecycle of a submitted transaction.
type TransactionStatus string

const (
	TxStatusUnknown   TransactionStatus = "unknown"
	TxStatusPending   TransactionStatus = "pending"
	TxStatusConfirmed TransactionStatus = "confirmed"
	TxStatusFailed    TransactionStatus = "failed"
)

// Constraints are venue-imposed trading limits the validation stage enforces.
type Constraints struct {
	MinTradeAmount float64
	MaxLeverage    float64
}

// ErrTransient marks venue failures that are safe to retry (timeouts,
// connection resets, 5xx). Permanent rejections are returned as plain errors.
var ErrTransient = errors.New("transient venue error")

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
