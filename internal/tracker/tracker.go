package tracker

import (
	"context"
	"sync"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/gateway/notifier"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/logger"
	"adapilot/internal/scheduler"
)

// UpdateListener receives a snapshot of the record on every state change.
type UpdateListener func(rec TransactionRecord)

// maxQueryFailures bounds how many consecutive transient poll failures a
// record tolerates before it is marked failed.
const maxQueryFailures = 30

// Tracker owns transaction history and the per-transaction poll loops.
type Tracker struct {
	cfg    config.TrackerConfig
	venue  venue.Venue
	notify notifier.TextNotifier

	mu        sync.Mutex
	records   map[string]*TransactionRecord
	order     []string // insertion order, oldest first
	listeners map[string][]UpdateListener // per transaction id
	global    map[string]UpdateListener
	pollers   map[string]context.CancelFunc

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	nowFn   func() time.Time

	positions *positionMonitor
}

func New(cfg config.TrackerConfig, v venue.Venue, notify notifier.TextNotifier) *Tracker {
	if notify == nil {
		notify = notifier.Nop{}
	}
	t := &Tracker{
		cfg:       cfg,
		venue:     v,
		notify:    notify,
		records:   make(map[string]*TransactionRecord),
		listeners: make(map[string][]UpdateListener),
		global:    make(map[string]UpdateListener),
		pollers:   make(map[string]context.CancelFunc),
		nowFn:     time.Now,
	}
	t.positions = newPositionMonitor(cfg, v, notify)
	return t
}

// Start binds the tracker lifecycle and launches the position monitor loop.
// Transaction pollers are spawned per Track call.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.rootCtx, t.cancel = context.WithCancel(ctx)
	root := t.rootCtx
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.positions.run(root)
	}()
}

// Stop cancels every poll loop and waits for them to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.started = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// Track registers a submitted transaction and starts its poll loop. Called by
// the execution service after a successful venue submission.
func (t *Tracker) Track(txID, signalID, walletAddress string) {
	now := t.nowFn()
	rec := &TransactionRecord{
		TransactionID: txID,
		SignalID:      signalID,
		WalletAddress: walletAddress,
		Status:        TxSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	t.mu.Lock()
	if _, exists := t.records[txID]; exists {
		t.mu.Unlock()
		logger.Warnf("tracker: transaction %s is already tracked", txID)
		return
	}
	t.records[txID] = rec
	t.order = append(t.order, txID)
	t.evictLocked()

	var pollCtx context.Context
	if t.started && t.rootCtx != nil {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithCancel(t.rootCtx)
		t.pollers[txID] = cancel
	}
	t.mu.Unlock()

	logger.Infof("tracker: tracking transaction %s signal=%s wallet=%s", txID, signalID, walletAddress)
	t.emit(rec.clone())

	if pollCtx != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.pollLoop(pollCtx, txID)
		}()
	}
}

// Subscribe registers a listener for one transaction id.
func (t *Tracker) Subscribe(txID string, l UpdateListener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[txID] = append(t.listeners[txID], l)
}

// SubscribeAll registers a named listener for every tracked transaction.
func (t *Tracker) SubscribeAll(name string, l UpdateListener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global[name] = l
}

// Record returns a snapshot of one tracked transaction.
func (t *Tracker) Record(txID string) (TransactionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[txID]
	if !ok {
		return TransactionRecord{}, false
	}
	return rec.clone(), true
}

// History returns snapshots of all tracked transactions, newest first.
func (t *Tracker) History() []TransactionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransactionRecord, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		if rec, ok := t.records[t.order[i]]; ok {
			out = append(out, rec.clone())
		}
	}
	return out
}

// PendingCount reports how many records have not reached a terminal state.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records {
		if !rec.Status.Terminal() {
			n++
		}
	}
	return n
}

func (t *Tracker) pollLoop(ctx context.Context, txID string) {
	interval := time.Duration(t.cfg.PollIntervalSeconds) * time.Second
	sched := scheduler.NewIntervalScheduler(ctx, "tx-"+txID, interval)
	sched.RunImmediately = true
	sched.Start(func() {
		if t.pollOnce(ctx, txID) {
			t.stopPoller(txID)
		}
	})
}

// pollOnce queries the venue for one transaction and reports whether tracking
// is finished.
func (t *Tracker) pollOnce(ctx context.Context, txID string) bool {
	status, err := t.venue.GetTransaction(ctx, txID)

	t.mu.Lock()
	rec, ok := t.records[txID]
	if !ok {
		t.mu.Unlock()
		return true // evicted while polling
	}
	rec.PollAttempts++
	now := t.nowFn()

	if err != nil {
		rec.QueryFailures++
		rec.LastError = err.Error()
		rec.UpdatedAt = now
		failed := rec.QueryFailures >= maxQueryFailures
		if failed {
			rec.Status = TxFailed
		}
		snapshot := rec.clone()
		t.mu.Unlock()

		logger.Warnf("tracker: polling %s failed (%d/%d): %v", txID, snapshot.QueryFailures, maxQueryFailures, err)
		if failed {
			t.emit(snapshot)
		}
		return failed
	}

	rec.QueryFailures = 0
	rec.LastError = ""
	next, known := stateFromVenue(status)
	if !known || next == rec.Status {
		t.mu.Unlock()
		return false
	}
	rec.Status = next
	rec.UpdatedAt = now
	if next == TxConfirmed {
		rec.ConfirmedAt = now
	}
	snapshot := rec.clone()
	t.mu.Unlock()

	logger.Infof("tracker: transaction %s -> %s (signal=%s)", txID, next, snapshot.SignalID)
	t.emit(snapshot)
	return next.Terminal()
}

// emit notifies per-transaction and global listeners on their own goroutines.
func (t *Tracker) emit(rec TransactionRecord) {
	t.mu.Lock()
	ls := make([]UpdateListener, 0, len(t.listeners[rec.TransactionID])+len(t.global))
	ls = append(ls, t.listeners[rec.TransactionID]...)
	for _, l := range t.global {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	for _, l := range ls {
		go func(l UpdateListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("tracker: listener panicked on transaction %s: %v", rec.TransactionID, r)
				}
			}()
			l(rec)
		}(l)
	}
}

func (t *Tracker) stopPoller(txID string) {
	t.mu.Lock()
	cancel := t.pollers[txID]
	delete(t.pollers, txID)
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// evictLocked drops the oldest records beyond the history limit. Caller holds
// t.mu.
func (t *Tracker) evictLocked() {
	limit := t.cfg.HistoryLimit
	if limit <= 0 {
		return
	}
	for len(t.order) > limit {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.records, oldest)
		delete(t.listeners, oldest)
		if cancel := t.pollers[oldest]; cancel != nil {
			cancel()
			delete(t.pollers, oldest)
		}
		logger.Debugf("tracker: evicted transaction %s from history", oldest)
	}
}
