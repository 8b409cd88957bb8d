package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/models"
)

// Open connects to the configured store. Postgres is the production target;
// sqlite serves local runs and tests.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.DBDriver) {
	case "postgres":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.DBPath))
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := open(dialector, logLevel(cfg.DBLogLevel), strings.EqualFold(cfg.DBDriver, "sqlite"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBDriver, err)
	}

	log.Info().Str("driver", cfg.DBDriver).Msg("Connected to database")
	return db, nil
}

// OpenInMemory returns a migrated private sqlite database. Tests use it.
func OpenInMemory() (*gorm.DB, error) {
	db, err := open(sqlite.Open(":memory:"), logger.Silent, true)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, err
	}
	return db, nil
}

func open(dialector gorm.Dialector, level logger.LogLevel, singleConn bool) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if singleConn {
		// sqlite allows one writer; a single connection keeps writers queued
		// in database/sql instead of failing with SQLITE_BUSY. It also keeps
		// an in-memory database alive for the life of the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	log.Info().Msg("Database migration completed")
	return nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
