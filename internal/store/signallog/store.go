// Package signallog keeps a flat append-only log of every accepted signal in
// SQLite, independent of the in-memory cache's eviction horizon.
package signallog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"adapilot/internal/signal"
)

type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("signal log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			price REAL NOT NULL,
			confidence REAL NOT NULL,
			pattern TEXT NOT NULL,
			position_size REAL,
			stop_loss REAL,
			take_profit REAL,
			indicators_json TEXT,
			reasoning TEXT,
			expires_at INTEGER,
			created_at INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_signal_log_signal_id ON signal_log(signal_id);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_log_ts ON signal_log(ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("preparing signal log schema: %w", err)
		}
	}
	return nil
}

// Save appends one accepted signal. Saving the same signal id twice is a
// no-op.
func (s *Store) Save(ctx context.Context, sig *signal.TradingSignal) error {
	if sig == nil {
		return fmt.Errorf("signal cannot be nil")
	}
	indicators, err := json.Marshal(sig.Indicators)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("signal log store is closed")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO signal_log
		 (signal_id, ts, type, price, confidence, pattern, position_size, stop_loss, take_profit, indicators_json, reasoning, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID,
		sig.Timestamp.UnixMilli(),
		string(sig.Type),
		sig.Price,
		sig.Confidence,
		string(sig.Pattern),
		sig.Risk.PositionSize,
		sig.Risk.StopLoss,
		sig.Risk.TakeProfit,
		string(indicators),
		sig.Reasoning,
		sig.ExpiresAt.UnixMilli(),
		time.Now().UnixMilli(),
	)
	return err
}

// Entry is the read-side shape of one logged signal.
type Entry struct {
	SignalID     string            `json:"signal_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         string            `json:"type"`
	Price        float64           `json:"price"`
	Confidence   float64           `json:"confidence"`
	Pattern      string            `json:"pattern"`
	PositionSize float64           `json:"position_size"`
	StopLoss     float64           `json:"stop_loss"`
	TakeProfit   float64           `json:"take_profit"`
	Indicators   signal.Indicators `json:"indicators"`
	Reasoning    string            `json:"reasoning,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// Recent returns the latest logged signals, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("signal log store is closed")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_id, ts, type, price, confidence, pattern, position_size, stop_loss, take_profit, indicators_json, reasoning, expires_at
		 FROM signal_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts, expires int64
		var indicators sql.NullString
		var reasoning sql.NullString
		if err := rows.Scan(&e.SignalID, &ts, &e.Type, &e.Price, &e.Confidence, &e.Pattern,
			&e.PositionSize, &e.StopLoss, &e.TakeProfit, &indicators, &reasoning, &expires); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		e.ExpiresAt = time.UnixMilli(expires)
		e.Reasoning = reasoning.String
		if indicators.Valid && indicators.String != "" {
			if err := json.Unmarshal([]byte(indicators.String), &e.Indicators); err != nil {
				return nil, fmt.Errorf("decoding indicators for %s: %w", e.SignalID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSince reports how many signals were logged at or after the instant.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, fmt.Errorf("signal log store is closed")
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signal_log WHERE ts >= ?`, since.UnixMilli()).Scan(&n)
	return n, err
}
