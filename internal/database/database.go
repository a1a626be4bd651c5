// Package database owns the PostgreSQL connection and schema migration for
// the sync store.
package database

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
)

// Pool limits. Sync workers hold connections across whole provider pages,
// so the pool is sized well above the scheduler's concurrency.
const (
	maxIdleConns    = 10
	maxOpenConns    = 100
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// Connect opens the PostgreSQL database and configures the connection pool.
// In production the DSN must not disable TLS.
func Connect(databaseURL string) (*gorm.DB, error) {
	if os.Getenv("APP_ENV") == "production" {
		if err := requireTLS(databaseURL); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	slog.Info("database connected")
	return db, nil
}

// requireTLS rejects a DSN that explicitly turns TLS off. A DSN without an
// sslmode falls back to the server's policy, which is acceptable.
func requireTLS(databaseURL string) error {
	if strings.Contains(databaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}
	return nil
}

// Migrate brings the schema up to date. AutoMigrate is additive, so the
// dedup unique index on provider_message_id survives every upgrade.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.EmailAccount{},
		&models.SyncCursor{},
		&models.Thread{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations completed")
	return nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
