// Package db opens the database, applies migrations and seeds reference data.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/occuhealth/internal/config"
	appLogger "github.com/diewo77/occuhealth/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Open connects to the database described by cfg, retrying while postgres starts.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *appLogger.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("DATABASE_DSN is empty")
	}
	logLevel := gormLogger.Silent
	if cfg.Debug {
		logLevel = gormLogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormLogger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	driver := DriverFor(cfg.DSN)
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(SQLitePath(cfg.DSN))
	default:
		dialector = postgres.Open(NormalizeDSN(cfg.DSN))
	}
	log.Info("opening database", "driver", driver, "dsn", MaskDSN(cfg.DSN))

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(dialector, gcfg)
		if err == nil {
			break
		}
		if driver == DriverSQLite {
			break
		}
		log.Warn("database not ready, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; a single connection also keeps in-memory databases alive.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return db, nil
}

// Ping checks the connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
