package execlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapilot/internal/execution"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "execlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(signalID string, success bool, at time.Time) execution.Record {
	rec := execution.Record{
		SignalID:   signalID,
		Wallet:     "addr1qtest",
		Side:       "long",
		Amount:     50,
		Leverage:   2,
		Price:      0.7234,
		Success:    success,
		Attempts:   1,
		ExecutedAt: at,
	}
	if success {
		rec.TransactionID = "tx-" + signalID
	} else {
		rec.ErrorType = "network"
		rec.ErrorMessage = "venue unreachable"
	}
	return rec
}

func TestRecordAndRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordExecution(ctx, record("sig-1", true, now.Add(-2*time.Minute))))
	require.NoError(t, s.RecordExecution(ctx, record("sig-2", false, now.Add(-time.Minute))))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "sig-2", entries[0].SignalID)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "network", entries[0].ErrorType)

	assert.Equal(t, "sig-1", entries[1].SignalID)
	assert.True(t, entries[1].Success)
	assert.Equal(t, "tx-sig-1", entries[1].TransactionID)
	assert.Equal(t, 50.0, entries[1].Amount)
}

func TestSuccessRate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	rate, total, err := s.SuccessRate(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate, "empty window counts as healthy")
	assert.Equal(t, 0, total)

	require.NoError(t, s.RecordExecution(ctx, record("sig-1", true, now)))
	require.NoError(t, s.RecordExecution(ctx, record("sig-2", true, now)))
	require.NoError(t, s.RecordExecution(ctx, record("sig-3", false, now)))

	rate, total, err = s.SuccessRate(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}
