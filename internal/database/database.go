package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

var DB *gorm.DB

// Connect opens the Supabase Postgres pool. verbose turns on SQL logging.
func Connect(dsn string, verbose bool) error {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // Supabase pooler (pgbouncer) rejects prepared statements
	}), &gorm.Config{
		Logger: logger.New(log.New(logs.Logger().Writer(), "", 0), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return fmt.Errorf("connect to supabase: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("connect to supabase: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	DB = db
	return nil
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
