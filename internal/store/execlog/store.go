// Package execlog persists execution outcomes to SQLite through gorm, for
// audit and the live API's history endpoints.
package execlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"adapilot/internal/execution"
)

type executionModel struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	SignalID      string         `gorm:"column:signal_id;index"`
	TransactionID string         `gorm:"column:transaction_id;index"`
	Wallet        string         `gorm:"column:wallet"`
	Side          string         `gorm:"column:side"`
	Amount        float64        `gorm:"column:amount"`
	Leverage      float64        `gorm:"column:leverage"`
	Price         float64        `gorm:"column:price"`
	Success       bool           `gorm:"column:success"`
	ErrorType     string         `gorm:"column:error_type"`
	ErrorMessage  string         `gorm:"column:error_message"`
	Attempts      int            `gorm:"column:attempts"`
	Details       datatypes.JSON `gorm:"column:details;type:TEXT"`
	ExecutedAt    int64          `gorm:"column:executed_at;index"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (executionModel) TableName() string { return "execution_log" }

// Store implements execution.Recorder on SQLite.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("execution log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&executionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a couple of connections keep HTTP reads cheap without
	// lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordExecution appends one execution outcome.
func (s *Store) RecordExecution(ctx context.Context, rec execution.Record) error {
	details, err := json.Marshal(map[string]any{
		"price":    rec.Price,
		"leverage": rec.Leverage,
	})
	if err != nil {
		return err
	}
	row := executionModel{
		SignalID:      rec.SignalID,
		TransactionID: rec.TransactionID,
		Wallet:        rec.Wallet,
		Side:          rec.Side,
		Amount:        rec.Amount,
		Leverage:      rec.Leverage,
		Price:         rec.Price,
		Success:       rec.Success,
		ErrorType:     rec.ErrorType,
		ErrorMessage:  rec.ErrorMessage,
		Attempts:      rec.Attempts,
		Details:       datatypes.JSON(details),
		ExecutedAt:    rec.ExecutedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Entry is the read-side shape of one persisted execution.
type Entry struct {
	ID            int64     `json:"id"`
	SignalID      string    `json:"signal_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Wallet        string    `json:"wallet"`
	Side          string    `json:"side"`
	Amount        float64   `json:"amount"`
	Leverage      float64   `json:"leverage"`
	Price         float64   `json:"price"`
	Success       bool      `json:"success"`
	ErrorType     string    `json:"error_type,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempts      int       `json:"attempts"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// Recent returns the latest executions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []executionModel
	err := s.db.WithContext(ctx).
		Order("executed_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			ID:            row.ID,
			SignalID:      row.SignalID,
			TransactionID: row.TransactionID,
			Wallet:        row.Wallet,
			Side:          row.Side,
			Amount:        row.Amount,
			Leverage:      row.Leverage,
			Price:         row.Price,
			Success:       row.Success,
			ErrorType:     row.ErrorType,
			ErrorMessage:  row.ErrorMessage,
			Attempts:      row.Attempts,
			ExecutedAt:    time.UnixMilli(row.ExecutedAt),
		})
	}
	return out, nil
}

// SuccessRate returns the executed/attempted ratio over the last window.
func (s *Store) SuccessRate(ctx context.Context, window time.Duration) (float64, int, error) {
	since := time.Now().Add(-window).UnixMilli()
	var total, succeeded int64
	if err := s.db.WithContext(ctx).Model(&executionModel{}).
		Where("executed_at >= ?", since).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 1, 0, nil
	}
	if err := s.db.WithContext(ctx).Model(&executionModel{}).
		Where("executed_at >= ? AND success = ?", since, true).Count(&succeeded).Error; err != nil {
		return 0, 0, err
	}
	return float64(succeeded) / float64(total), int(total), nil
}
