package livehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapilot/internal/execution"
	"adapilot/internal/generator"
	"adapilot/internal/manager"
	"adapilot/internal/signal"
	"adapilot/internal/store/execlog"
	"adapilot/internal/store/signallog"
	"adapilot/internal/tracker"
)

type fakePipeline struct {
	signals      map[string]*signal.TradingSignal
	transactions map[string]tracker.TransactionRecord
	execResult   *execution.Result
	health       manager.HealthSnapshot
	cancellable  bool
}

func (f *fakePipeline) GeneratorStatus() generator.StatusReport {
	return generator.StatusReport{Running: true, Health: generator.HealthHealthy, SignalsToday: 2}
}

func (f *fakePipeline) Health(ctx context.Context) manager.HealthSnapshot { return f.health }

func (f *fakePipeline) Signals() []*signal.TradingSignal {
	out := make([]*signal.TradingSignal, 0, len(f.signals))
	for _, s := range f.signals {
		out = append(out, s)
	}
	return out
}

func (f *fakePipeline) Signal(id string) (*signal.TradingSignal, bool) {
	s, ok := f.signals[id]
	return s, ok
}

func (f *fakePipeline) TriggerPoll(ctx context.Context) generator.Outcome {
	return generator.OutcomeHold
}

func (f *fakePipeline) Execute(ctx context.Context, signalID string) (*execution.Result, error) {
	if _, ok := f.signals[signalID]; !ok {
		return nil, fmt.Errorf("signal %s not found or expired from cache", signalID)
	}
	return f.execResult, nil
}

func (f *fakePipeline) PreflightSignal(ctx context.Context, signalID string) (*execution.PreflightReport, error) {
	if _, ok := f.signals[signalID]; !ok {
		return nil, fmt.Errorf("signal %s not found", signalID)
	}
	return &execution.PreflightReport{SignalID: signalID, CanExecute: true}, nil
}

func (f *fakePipeline) Cancel(signalID string) bool { return f.cancellable }

func (f *fakePipeline) Transactions() []tracker.TransactionRecord {
	out := make([]tracker.TransactionRecord, 0, len(f.transactions))
	for _, rec := range f.transactions {
		out = append(out, rec)
	}
	return out
}

func (f *fakePipeline) Transaction(id string) (tracker.TransactionRecord, bool) {
	rec, ok := f.transactions[id]
	return rec, ok
}

func (f *fakePipeline) Positions() []tracker.MonitoredPosition { return nil }

func (f *fakePipeline) RecentExecutions(ctx context.Context, limit int) ([]execlog.Entry, error) {
	return []execlog.Entry{{SignalID: "sig-1", Success: true}}, nil
}

func (f *fakePipeline) RecentSignalLog(ctx context.Context, limit int) ([]signallog.Entry, error) {
	return nil, nil
}

func newTestServer(t *testing.T, p *fakePipeline) *httptest.Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Addr: ":0", Pipeline: p})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})
	var body map[string]string
	code := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})
	var body struct {
		Generator generator.StatusReport `json:"generator"`
	}
	code := getJSON(t, ts.URL+"/api/live/status", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Generator.Running)
	assert.Equal(t, 2, body.Generator.SignalsToday)
}

func TestHealthEndpointMirrorsOverall(t *testing.T) {
	p := &fakePipeline{health: manager.HealthSnapshot{Overall: manager.Healthy}}
	ts := newTestServer(t, p)
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live/health", nil))

	p.health = manager.HealthSnapshot{Overall: manager.Unhealthy}
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/live/health", nil))
}

func TestSignalLookup(t *testing.T) {
	sig := &signal.TradingSignal{ID: "sig-1", Type: signal.TypeLong, Price: 0.7234}
	ts := newTestServer(t, &fakePipeline{signals: map[string]*signal.TradingSignal{"sig-1": sig}})

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live/signals/sig-1", &body))
	assert.Equal(t, "sig-1", body["id"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/live/signals/nope", nil))
}

func TestExecuteEndpointStatusMapping(t *testing.T) {
	sig := &signal.TradingSignal{ID: "sig-1"}
	p := &fakePipeline{
		signals:    map[string]*signal.TradingSignal{"sig-1": sig},
		execResult: &execution.Result{SignalID: "sig-1", Success: true, TransactionID: "tx-1"},
	}
	ts := newTestServer(t, p)

	var body execution.Result
	assert.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/live/signals/sig-1/execute", &body))
	assert.Equal(t, "tx-1", body.TransactionID)

	p.execResult = &execution.Result{SignalID: "sig-1", Success: false,
		Error: &execution.ExecutionError{Type: execution.ErrTypeBalance, Message: "broke"}}
	assert.Equal(t, http.StatusUnprocessableEntity, postJSON(t, ts.URL+"/api/live/signals/sig-1/execute", nil))

	p.execResult = &execution.Result{SignalID: "sig-1", Success: false,
		Error: &execution.ExecutionError{Type: execution.ErrTypeNetwork, Message: "down"}}
	assert.Equal(t, http.StatusBadGateway, postJSON(t, ts.URL+"/api/live/signals/sig-1/execute", nil))

	assert.Equal(t, http.StatusNotFound, postJSON(t, ts.URL+"/api/live/signals/missing/execute", nil))
}

func TestCancelEndpoint(t *testing.T) {
	p := &fakePipeline{cancellable: true}
	ts := newTestServer(t, p)
	assert.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/live/signals/sig-1/cancel", nil))

	p.cancellable = false
	assert.Equal(t, http.StatusConflict, postJSON(t, ts.URL+"/api/live/signals/sig-1/cancel", nil))
}

func TestTransactionEndpoints(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{transactions: map[string]tracker.TransactionRecord{
		"tx-1": {TransactionID: "tx-1", SignalID: "sig-1", Status: tracker.TxPending},
	}})

	var list struct {
		Transactions []tracker.TransactionRecord `json:"transactions"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live/transactions", &list))
	require.Len(t, list.Transactions, 1)

	var rec tracker.TransactionRecord
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live/transactions/tx-1", &rec))
	assert.Equal(t, tracker.TxPending, rec.Status)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/live/transactions/absent", nil))
}

func TestExecutionLogEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})
	var body struct {
		Executions []execlog.Entry `json:"executions"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live/executions", &body))
	require.Len(t, body.Executions, 1)
	assert.Equal(t, "sig-1", body.Executions[0].SignalID)
}
