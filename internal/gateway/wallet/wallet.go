// Package wallet exposes the read-only wallet capability the pipeline
// consumes: address, balance and connection status.
package wallet

import (
	"context"
	"fmt"
	"strings"

	"adapilot/internal/gateway/venue"
)

// Wallet is the lookup capability; implementations must be read-only.
type Wallet interface {
	Address() string
	Balance(ctx context.Context) (venue.Balance, error)
	Connected(ctx context.Context) bool
}

// VenueWallet resolves balances through the venue for a fixed address.
type VenueWallet struct {
	address string
	venue   venue.Venue
}

func NewVenueWallet(address string, v venue.Venue) (*VenueWallet, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("wallet address cannot be empty")
	}
	if v == nil {
		return nil, fmt.Errorf("wallet requires a venue")
	}
	return &VenueWallet{address: address, venue: v}, nil
}

func (w *VenueWallet) Address() string { return w.address }

func (w *VenueWallet) Balance(ctx context.Context) (venue.Balance, error) {
	return w.venue.GetBalance(ctx, w.address)
}

func (w *VenueWallet) Connected(ctx context.Context) bool {
	_, err := w.venue.GetBalance(ctx, w.address)
	return err == nil
}
