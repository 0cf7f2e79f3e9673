package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if !cfg.Ledger.VATRate.Equal(decimal.RequireFromString("0.18")) {
		t.Errorf("VATRate = %s, want 0.18", cfg.Ledger.VATRate)
	}
	if cfg.Ledger.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", cfg.Ledger.Currency)
	}
	if cfg.Cache.CatalogTTL != 5*time.Minute {
		t.Errorf("CatalogTTL = %v, want 5m", cfg.Cache.CatalogTTL)
	}
	if cfg.App.Migrations != "auto" {
		t.Errorf("Migrations = %q, want auto", cfg.App.Migrations)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VAT_RATE", "0.2")
	t.Setenv("CURRENCY", "chf")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CATALOG_CACHE_TTL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if !cfg.Ledger.VATRate.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("VATRate = %s, want 0.2", cfg.Ledger.VATRate)
	}
	if cfg.Ledger.Currency != "CHF" {
		t.Errorf("Currency = %q, want CHF", cfg.Ledger.Currency)
	}
	if !cfg.App.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if cfg.Cache.CatalogTTL != 30*time.Second {
		t.Errorf("CatalogTTL = %v, want 30s", cfg.Cache.CatalogTTL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"vat above one", "VAT_RATE", "18"},
		{"negative vat", "VAT_RATE", "-0.1"},
		{"unknown migrations mode", "MIGRATIONS", "sometimes"},
		{"unknown exporter", "OTEL_EXPORTER", "zipkin"},
		{"unknown currency", "CURRENCY", "XYZW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s: expected error", tt.key, tt.val)
			}
		})
	}
}
