package manager

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"adapilot/internal/logger"
	"adapilot/internal/signal"
)

// AutoExecutePolicy is the filter applied to generated signals before they
// are executed without operator confirmation.
type AutoExecutePolicy struct {
	Enabled         bool     `yaml:"enabled"`
	MinConfidence   float64  `yaml:"min_confidence"`
	MaxPositionSize float64  `yaml:"max_position_size"`
	AllowedPatterns []string `yaml:"allowed_patterns"`
	AllowedWallets  []string `yaml:"allowed_wallets"`
}

// Allows reports whether the signal passes the filter for the given wallet,
// with the first failing rule as reason.
func (p AutoExecutePolicy) Allows(sig *signal.TradingSignal, wallet string) (bool, string) {
	if !p.Enabled {
		return false, "auto-execution disabled by policy"
	}
	if sig.Confidence < p.MinConfidence {
		return false, fmt.Sprintf("confidence %.1f below policy minimum %.1f", sig.Confidence, p.MinConfidence)
	}
	if p.MaxPositionSize > 0 && sig.Risk.PositionSize > p.MaxPositionSize {
		return false, fmt.Sprintf("position size %.2f above policy maximum %.2f", sig.Risk.PositionSize, p.MaxPositionSize)
	}
	if len(p.AllowedPatterns) > 0 && !contains(p.AllowedPatterns, string(sig.Pattern)) {
		return false, fmt.Sprintf("pattern %s not in policy allow-list", sig.Pattern)
	}
	if len(p.AllowedWallets) > 0 && !contains(p.AllowedWallets, wallet) {
		return false, fmt.Sprintf("wallet %s not in policy allow-list", wallet)
	}
	return true, ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// PolicyWatcher serves the current auto-execute policy and reloads it when
// the file changes on disk.
type PolicyWatcher struct {
	path string

	mu      sync.RWMutex
	current AutoExecutePolicy

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPolicyWatcher loads the policy file. A missing file is not an error: it
// yields a disabled policy that may appear later.
func NewPolicyWatcher(path string) (*PolicyWatcher, error) {
	w := &PolicyWatcher{path: path, done: make(chan struct{})}
	if err := w.reload(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Warnf("manager: policy file %s does not exist, auto-execution disabled until it appears", path)
	}
	return w, nil
}

// Watch starts reacting to file changes. Safe to skip for tests.
func (w *PolicyWatcher) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching policy directory: %w", err)
	}
	w.watcher = watcher

	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := w.reload(); err != nil {
					logger.Errorf("manager: reloading policy %s failed, keeping previous: %v", w.path, err)
					continue
				}
				logger.Infof("manager: auto-execute policy reloaded from %s", w.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("manager: policy watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (w *PolicyWatcher) Close() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// Policy returns the current policy snapshot.
func (w *PolicyWatcher) Policy() AutoExecutePolicy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *PolicyWatcher) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	var policy AutoExecutePolicy
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil {
		return fmt.Errorf("parsing policy file: %w", err)
	}
	w.mu.Lock()
	w.current = policy
	w.mu.Unlock()
	return nil
}
