package main

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/occuhealth/httpx"
	"github.com/diewo77/occuhealth/internal/catalog"
	"github.com/diewo77/occuhealth/internal/config"
	"github.com/diewo77/occuhealth/internal/db"
	"github.com/diewo77/occuhealth/internal/handlers"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/middleware"
	"github.com/diewo77/occuhealth/internal/repos"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	router chi.Router
	db     *gorm.DB
	log    *logger.Logger

	Ledger *services.LedgerService
	Quotes *services.QuoteService
}

// NewApp wires repositories, services and handlers around db.
func NewApp(gdb *gorm.DB, cfg *config.Config, cat catalog.Catalog, log *logger.Logger) *App {
	quoteRepo := repos.NewQuoteRepo(gdb, log)
	itemRepo := repos.NewQuoteItemRepo(gdb, log)
	policy := services.NewFixedRatePolicy(cfg.Ledger.VATRate)

	app := &App{
		router: chi.NewRouter(),
		db:     gdb,
		log:    log,
		Ledger: services.NewLedgerService(gdb, quoteRepo, itemRepo, cat, policy, cfg.Ledger.Currency, log),
		Quotes: services.NewQuoteService(gdb, quoteRepo, cfg.Ledger.Currency, log),
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	r := a.router
	r.Use(middleware.Logging(a.log), middleware.Recover(a.log))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	r.Get("/health", a.health)
	handlers.NewQuoteItemHandler(a.Ledger, a.log).Register(r)
	handlers.NewQuoteHandler(a.Quotes, a.log).Register(r)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx, a.db); err != nil {
		a.log.Warn("health check failed", "error", err)
		httpx.JSONError(w, http.StatusServiceUnavailable, "db_unavailable", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// buildCatalog stacks the in-memory cache over Redis (when configured) over the database.
// The returned cleanup closes the Redis client.
func buildCatalog(ctx context.Context, gdb *gorm.DB, cfg config.CacheConfig, log *logger.Logger) (catalog.Catalog, func()) {
	var inner catalog.Catalog = catalog.NewDBCatalog(gdb)
	cleanup := func() {}
	if cfg.RedisAddr != "" {
		client, err := catalog.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, catalog cache stays in-process", "addr", cfg.RedisAddr, "error", err)
		} else {
			inner = catalog.NewRedis(inner, client, cfg.RedisPrefix, cfg.CatalogTTL, log)
			cleanup = func() { _ = client.Close() }
			log.Info("catalog cache backed by redis", "addr", cfg.RedisAddr)
		}
	}
	if cfg.CatalogTTL <= 0 {
		return inner, cleanup
	}
	return catalog.NewCached(inner, cfg.CatalogTTL), cleanup
}
