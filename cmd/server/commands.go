package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/diewo77/occuhealth/internal/config"
	"github.com/diewo77/occuhealth/internal/db"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/diewo77/occuhealth/internal/telemetry"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// runtimeEnv is what every command needs before doing its own work.
type runtimeEnv struct {
	cfg *config.Config
	log *logger.Logger
	db  *gorm.DB
}

func setup(ctx context.Context, migrate bool) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	gdb, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.Migrate(gdb, cfg.App.Migrations, cfg.Database.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	return &runtimeEnv{cfg: cfg, log: log, db: gdb}, nil
}

func (e *runtimeEnv) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	e.log.Sync()
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `serve

  Starts the quote ledger API. Migrations run first according to MIGRATIONS,
  and the demo catalog is seeded when DB_SEED is set.
`
}
func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer env.close()
	log := env.log

	shutdownTracing, err := telemetry.Init(ctx, env.cfg.Telemetry, env.cfg.App.Env, log)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	if env.cfg.App.Seed {
		if err := seedDemo(ctx, env); err != nil {
			return fail(err)
		}
	}

	cat, closeCatalog := buildCatalog(ctx, env.db, env.cfg.Cache, log)
	defer closeCatalog()
	app := NewApp(env.db, env.cfg, cat, log)

	srv := &http.Server{
		Addr:         ":" + env.cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  env.cfg.Server.ReadTimeout,
		WriteTimeout: env.cfg.Server.WriteTimeout,
		IdleTimeout:  env.cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", env.cfg.Server.Port, "env", env.cfg.App.Env, "vat_rate", env.cfg.Ledger.VATRate.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fail(err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}
	log.Info("server stopped gracefully")
	return subcommands.ExitSuccess
}

type migrateCmd struct {
	mode string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations and exit" }
func (*migrateCmd) Usage() string {
	return `migrate [-mode auto|sql]

  Applies the schema. Defaults to the MIGRATIONS setting, or auto when it is off.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.mode, "mode", "", "Migration mode (auto, sql); defaults to MIGRATIONS")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	env, err := setup(ctx, false)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	mode := c.mode
	if mode == "" {
		mode = env.cfg.App.Migrations
	}
	if mode == db.MigrateOff {
		mode = db.MigrateAuto
	}
	if err := db.Migrate(env.db, mode, env.cfg.Database.DSN); err != nil {
		return fail(err)
	}
	env.log.Info("migrations completed", "mode", mode)
	return subcommands.ExitSuccess
}

type seedCmd struct{}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "seed the demo company, catalog and quote" }
func (*seedCmd) Usage() string {
	return `seed

  Inserts a demo company, the health-test catalog and one priced quote. Safe to rerun.
`
}
func (*seedCmd) SetFlags(*flag.FlagSet) {}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	env, err := setup(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer env.close()
	if err := seedDemo(ctx, env); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// seedDemo seeds reference data and, when the demo company has no quote yet, one quote
// priced through the ledger.
func seedDemo(ctx context.Context, env *runtimeEnv) error {
	company, err := db.Seed(ctx, env.db)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	var quotes int64
	if err := env.db.WithContext(ctx).Table("quotes").Where("company_id = ?", company.ID).Count(&quotes).Error; err != nil {
		return err
	}
	if quotes > 0 {
		env.log.Info("seed data already present", "company_id", company.ID)
		return nil
	}

	cat, closeCatalog := buildCatalog(ctx, env.db, env.cfg.Cache, env.log)
	defer closeCatalog()
	app := NewApp(env.db, env.cfg, cat, env.log)

	q, err := app.Quotes.CreateQuote(ctx, services.CreateQuoteInput{CompanyID: company.ID, Notes: "Campagne de suivi annuelle"})
	if err != nil {
		return fmt.Errorf("seed quote: %w", err)
	}
	lines := []services.AddItemInput{
		{Quantity: decPtr("1"), UnitPrice: decPtr("1000"), Description: strPtr("Visite médicale périodique")},
		{Quantity: decPtr("2"), UnitPrice: decPtr("50"), Description: strPtr("Audiométrie")},
	}
	for _, in := range lines {
		if _, err := app.Ledger.AddItem(ctx, q.ID, in); err != nil {
			return fmt.Errorf("seed quote item: %w", err)
		}
	}
	env.log.Info("seed completed", "company_id", company.ID, "quote_id", q.ID, "quote_number", q.QuoteNumber)
	return nil
}

type recomputeCmd struct {
	quoteID uint
	workers int
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "re-derive stored quote totals from their items" }
func (*recomputeCmd) Usage() string {
	return `recompute [-quote <id>] [-workers <n>]

  Recomputes subtotal, tax and total of one quote, or of every quote when -quote
  is omitted, and prints a JSON report of the quotes whose stored totals drifted.
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.quoteID, "quote", 0, "Recompute only this quote id")
	f.IntVar(&c.workers, "workers", 0, "Quotes recomputed in parallel (defaults to RECOMPUTE_WORKERS)")
}

func (c *recomputeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	env, err := setup(ctx, false)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	cat, closeCatalog := buildCatalog(ctx, env.db, env.cfg.Cache, env.log)
	defer closeCatalog()
	app := NewApp(env.db, env.cfg, cat, env.log)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if c.quoteID > 0 {
		res, err := app.Ledger.Recompute(ctx, c.quoteID)
		if err != nil {
			return fail(err)
		}
		_ = enc.Encode(res)
		return subcommands.ExitSuccess
	}

	workers := c.workers
	if workers <= 0 {
		workers = env.cfg.Ledger.RecomputeWorker
	}
	report, err := app.Ledger.RecomputeAll(ctx, workers)
	if report != nil {
		_ = enc.Encode(report)
	}
	if err != nil {
		return fail(err)
	}
	if len(report.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }
