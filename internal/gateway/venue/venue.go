package venue

import "context"

// Venue abstracts the external perpetuals platform. The execution service and
// transaction tracker depend on this interface only, never on the concrete
// Strike client.
type Venue interface {
	Name() string

	OpenPosition(ctx context.Context, req OpenRequest) (*OpenResult, error)

	ClosePosition(ctx context.Context, positionID string) error

	GetPositions(ctx context.Context, address string) ([]Position, error)

	GetBalance(ctx context.Context, address string) (Balance, error)

	GetPrice(ctx context.Context, asset string) (PriceQuote, error)

	// GetTransaction reports the venue-side status of a submitted
	// transaction, used by the tracker's reconciliation loop.
	GetTransaction(ctx context.Context, txID string) (TransactionStatus, error)

	Constraints() Constraints
}
