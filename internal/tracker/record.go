// Package tracker follows submitted transactions to confirmation and watches
// open positions for risk alerts.
package tracker

import (
	"time"

	"adapilot/internal/gateway/venue"
)

type TxState string

const (
	TxSubmitted TxState = "submitted"
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

func (s TxState) Terminal() bool { return s == TxConfirmed || s == TxFailed }

// stateFromVenue maps venue statuses onto the record lifecycle. Unknown maps
// to no change.
func stateFromVenue(vs venue.TransactionStatus) (TxState, bool) {
	switch vs {
	case venue.TxStatusPending:
		return TxPending, true
	case venue.TxStatusConfirmed:
		return TxConfirmed, true
	case venue.TxStatusFailed:
		return TxFailed, true
	default:
		return "", false
	}
}

// TransactionRecord is the tracked lifecycle of one submitted transaction.
// Fields are mutated only by the tracker's own poll loop.
type TransactionRecord struct {
	TransactionID string    `json:"transaction_id"`
	SignalID      string    `json:"signal_id"`
	WalletAddress string    `json:"wallet_address"`
	Status        TxState   `json:"status"`
	PollAttempts  int       `json:"poll_attempts"`
	QueryFailures int       `json:"query_failures"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ConfirmedAt   time.Time `json:"confirmed_at,omitempty"`
}

func (r *TransactionRecord) clone() TransactionRecord { return *r }
