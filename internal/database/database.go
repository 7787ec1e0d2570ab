// Package database owns the sqlite connection and the serialized write path.
package database

import (
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"glance/internal/config"
	"glance/internal/events"
	"glance/internal/sessions"
	"glance/internal/visitors"
	"glance/internal/websites"
)

// Manager wraps a GORM sqlite connection with WAL mode, a bounded pool and
// glance-specific migrations.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	mu     sync.Mutex
}

// NewManager creates a database manager for the configured sqlite file.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// NewManagerWithConnection wraps an already-open connection; tests use it to
// run the write path against an in-memory database.
func NewManagerWithConnection(db *gorm.DB, logger *slog.Logger) *Manager {
	return &Manager{logger: logger, db: db}
}

// Connect opens the sqlite database. WAL mode allows concurrent readers
// while the write path stays serialized through PerformWrite.
func (m *Manager) Connect() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", m.cfg.DatabaseName)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(m.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(m.cfg.GetMaxIdleConns())

	m.db = db
	return db, nil
}

// GetConnection returns the shared GORM handle.
func (m *Manager) GetConnection() *gorm.DB {
	return m.db
}

// PerformWrite runs fn inside a transaction while holding the manager's
// write lock. sqlite allows a single writer; serializing writes in-process
// avoids busy retries under ingestion bursts.
func (m *Manager) PerformWrite(fn func(tx *gorm.DB) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Transaction(fn)
}

// MigrateDatabase runs the schema migrations for all tracked collections.
func (m *Manager) MigrateDatabase() error {
	if m.db == nil {
		return gorm.ErrInvalidDB
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&websites.Website{},
			&visitors.Visitor{},
			&sessions.Session{},
			&events.Event{},
			&events.JsError{},
		)
	})
	if err != nil {
		m.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	m.logger.Info("Database migration completed successfully")
	return nil
}
