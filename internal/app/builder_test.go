package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapilot/internal/config"
	"adapilot/internal/gateway/algorithm"
	"adapilot/internal/gateway/venue"
)

type stubVenue struct{}

func (stubVenue) Name() string { return "stub" }

func (stubVenue) OpenPosition(ctx context.Context, req venue.OpenRequest) (*venue.OpenResult, error) {
	return &venue.OpenResult{TransactionID: "tx-1", SubmittedAt: time.Now()}, nil
}

func (stubVenue) ClosePosition(ctx context.Context, positionID string) error { return nil }

func (stubVenue) GetPositions(ctx context.Context, address string) ([]venue.Position, error) {
	return nil, nil
}

func (stubVenue) GetBalance(ctx context.Context, address string) (venue.Balance, error) {
	return venue.Balance{Address: address, Available: 1000, Total: 1000}, nil
}

func (stubVenue) GetPrice(ctx context.Context, asset string) (venue.PriceQuote, error) {
	return venue.PriceQuote{Asset: asset, Last: 0.72}, nil
}

func (stubVenue) GetTransaction(ctx context.Context, txID string) (venue.TransactionStatus, error) {
	return venue.TxStatusConfirmed, nil
}

func (stubVenue) Constraints() venue.Constraints {
	return venue.Constraints{MinTradeAmount: 40, MaxLeverage: 10}
}

type stubSource struct{}

func (stubSource) Name() string { return "stub-source" }

func (stubSource) Analyze(ctx context.Context, req algorithm.Request) (algorithm.Analysis, error) {
	return algorithm.Analysis{Direction: "HOLD"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Wallet.Address = "addr1qxstub"
	cfg.Store.ExecLogPath = filepath.Join(dir, "exec.db")
	cfg.Store.SignalLogPath = filepath.Join(dir, "signals.db")
	cfg.Manager.PolicyPath = filepath.Join(dir, "auto_execute.yaml")
	return cfg
}

func TestBuildAssemblesPipeline(t *testing.T) {
	b := NewAppBuilder(testConfig(t),
		func(b *AppBuilder) {
			b.venueFn = func(config.VenueConfig) (venue.Venue, error) { return stubVenue{}, nil }
		},
		func(b *AppBuilder) {
			b.sourceFn = func(*config.Config) (algorithm.Source, error) { return stubSource{}, nil }
		},
	)
	app, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, app)
	t.Cleanup(app.shutdown)

	assert.NotNil(t, app.Manager())
	assert.False(t, app.generator.Status().Running)

	// Wiring sanity: a manual poll reaches the stub source and records one cycle.
	outcome, sig := app.generator.RunCycle(context.Background())
	assert.Nil(t, sig)
	assert.NotEmpty(t, outcome)
}

func TestBuildRejectsEmptyWallet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.Address = ""
	b := NewAppBuilder(cfg, func(b *AppBuilder) {
		b.venueFn = func(config.VenueConfig) (venue.Venue, error) { return stubVenue{}, nil }
	})
	_, err := b.Build(context.Background())
	require.Error(t, err)
}
