package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/occuhealth/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration modes accepted by Migrate.
const (
	MigrateAuto = "auto"
	MigrateSQL  = "sql"
	MigrateOff  = "off"
)

// AllModels lists every persisted model in dependency order.
func AllModels() []any {
	return []any{
		&models.Company{},
		&models.HealthTest{},
		&models.Quote{},
		&models.QuoteItem{},
	}
}

// Migrate brings the schema up to date.
// "auto" runs gorm AutoMigrate, "sql" applies the embedded SQL files with golang-migrate
// (postgres only) and "off" does nothing.
func Migrate(db *gorm.DB, mode, dsn string) error {
	switch mode {
	case MigrateOff:
		return nil
	case MigrateSQL:
		if DriverFor(dsn) != DriverPostgres {
			return fmt.Errorf("sql migrations require postgres, got %s", DriverFor(dsn))
		}
		return runSQLMigrations(ToURLDSN(NormalizeDSN(dsn)))
	case MigrateAuto, "":
		for _, m := range AllModels() {
			if err := db.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	default:
		return fmt.Errorf("unknown migration mode %q", mode)
	}

	for _, table := range []string{"companies", "health_tests", "quotes", "quote_items"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// runSQLMigrations executes the embedded migrations using golang-migrate.
func runSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
