// Package testutil provides in-memory databases and fixtures for tests.
package testutil

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diewo77/occuhealth/internal/db"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	dbSeq      atomic.Int64
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// NewDB opens a private in-memory sqlite database with the schema applied.
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := unsafeName.ReplaceAllString(tb.Name(), "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb, db.MigrateAuto, "sqlite:"); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

// Dec parses a decimal literal, panicking on malformed input.
func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// SeedCompany inserts a company.
func SeedCompany(tb testing.TB, gdb *gorm.DB, name string) *models.Company {
	tb.Helper()
	c := &models.Company{Name: name, Email: "contact@example.com", City: "Lyon", PostalCode: "69003", Address: "1 place Bellecour"}
	if err := gdb.Create(c).Error; err != nil {
		tb.Fatalf("seed company: %v", err)
	}
	return c
}

// SeedHealthTest inserts a catalog entry.
func SeedHealthTest(tb testing.TB, gdb *gorm.DB, code, name string) *models.HealthTest {
	tb.Helper()
	ht := &models.HealthTest{Code: code, Name: name, Active: true}
	if err := gdb.Create(ht).Error; err != nil {
		tb.Fatalf("seed health test: %v", err)
	}
	return ht
}

// SeedQuote inserts a draft quote with zero totals.
func SeedQuote(tb testing.TB, gdb *gorm.DB, companyID uint, number string) *models.Quote {
	tb.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	q := &models.Quote{
		CompanyID:      companyID,
		QuoteNumber:    number,
		IssueDate:      now,
		ValidUntilDate: now.AddDate(0, 1, 0),
		Status:         models.QuoteStatusDraft,
	}
	if err := gdb.Create(q).Error; err != nil {
		tb.Fatalf("seed quote: %v", err)
	}
	return q
}

// SeedItem inserts an item directly, bypassing the ledger. Header totals are left untouched.
func SeedItem(tb testing.TB, gdb *gorm.DB, quoteID uint, qty int, unitPrice, description string) *models.QuoteItem {
	tb.Helper()
	it := &models.QuoteItem{QuoteID: quoteID, Quantity: qty, UnitPrice: Dec(unitPrice), Description: description}
	it.RecomputeTotal()
	if err := gdb.Create(it).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return it
}

// SetTotals overwrites the stored header aggregates, e.g. to simulate drift.
func SetTotals(tb testing.TB, gdb *gorm.DB, quoteID uint, subtotal, tax, total string) {
	tb.Helper()
	err := gdb.Model(&models.Quote{}).Where("id = ?", quoteID).Updates(map[string]any{
		"subtotal": Dec(subtotal),
		"tax":      Dec(tax),
		"total":    Dec(total),
	}).Error
	if err != nil {
		tb.Fatalf("set totals: %v", err)
	}
}
