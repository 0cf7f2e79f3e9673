package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/diewo77/occuhealth/internal/catalog"
	"github.com/diewo77/occuhealth/internal/dbctx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/diewo77/occuhealth/internal/repos"
	"github.com/diewo77/occuhealth/validation"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultMaxAttempts bounds how often a mutation is replayed after losing a version race.
const DefaultMaxAttempts = 3

const maxDescriptionLen = 500

// AddItemInput is the payload of a new line item. Numbers are decoded as decimals so
// non-integer quantities are reported as validation errors rather than decode errors.
type AddItemInput struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unitPrice"`
	Description  *string          `json:"description"`
	HealthTestID *decimal.Decimal `json:"healthTestId"`
}

// UpdateItemInput is a partial item update; nil fields are left unchanged.
type UpdateItemInput struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unitPrice"`
	Description  *string          `json:"description"`
	HealthTestID *decimal.Decimal `json:"healthTestId"`
}

// Empty reports whether the update carries no field at all.
func (in UpdateItemInput) Empty() bool {
	return in.Quantity == nil && in.UnitPrice == nil && in.Description == nil && in.HealthTestID == nil
}

// RecomputeResult describes one header recomputation.
type RecomputeResult struct {
	QuoteID uint               `json:"quoteId"`
	Before  models.QuoteTotals `json:"before"`
	After   models.QuoteTotals `json:"after"`
}

// Drifted reports whether the stored aggregates disagreed with the items.
func (r RecomputeResult) Drifted() bool { return !r.Before.Equal(r.After) }

// RecomputeReport summarises a recompute over many quotes.
type RecomputeReport struct {
	Checked  int             `json:"checked"`
	Repaired []uint          `json:"repaired"`
	Failed   map[uint]string `json:"failed,omitempty"`
}

// LedgerService keeps quote aggregates consistent with their items.
// Every item mutation and the following recomputation run in one transaction holding
// a row lock on the quote.
type LedgerService struct {
	db          *gorm.DB
	quotes      repos.QuoteRepo
	items       repos.QuoteItemRepo
	catalog     catalog.Catalog
	policy      TaxPolicy
	currency    string
	maxAttempts int
	log         *logger.Logger
	tracer      trace.Tracer
}

func NewLedgerService(db *gorm.DB, quotes repos.QuoteRepo, items repos.QuoteItemRepo, cat catalog.Catalog, policy TaxPolicy, currency string, baseLog *logger.Logger) *LedgerService {
	return &LedgerService{
		db:          db,
		quotes:      quotes,
		items:       items,
		catalog:     cat,
		policy:      policy,
		currency:    currency,
		maxAttempts: DefaultMaxAttempts,
		log:         baseLog.With("service", "LedgerService", "tax_policy", policy.Name()),
		tracer:      otel.Tracer("github.com/diewo77/occuhealth/internal/services"),
	}
}

// AddItem appends a line item to the quote and recomputes its totals.
func (s *LedgerService) AddItem(ctx context.Context, quoteID uint, in AddItemInput) (*ItemView, error) {
	v := validation.Violations{}
	var description string
	if in.Description != nil {
		description = strings.TrimSpace(*in.Description)
	}
	validation.Required("description", description, v)
	validateDescription(description, v)
	if in.Quantity == nil {
		v["quantity"] = "required"
	} else {
		validation.PositiveInteger("quantity", *in.Quantity, v)
	}
	if in.UnitPrice == nil {
		v["unitPrice"] = "required"
	} else {
		validateUnitPrice(*in.UnitPrice, v)
	}
	if in.HealthTestID != nil {
		validation.PositiveInteger("healthTestId", *in.HealthTestID, v)
	}
	if err := invalid(v); err != nil {
		return nil, err
	}

	snap, testID, err := s.resolveHealthTest(ctx, in.HealthTestID)
	if err != nil {
		return nil, err
	}

	var created models.QuoteItem
	_, err = s.mutate(ctx, "add_item", quoteID, func(dbc dbctx.Context, q *models.Quote) error {
		item := models.QuoteItem{
			QuoteID:      q.ID,
			HealthTestID: testID,
			Description:  description,
			Quantity:     int(in.Quantity.IntPart()),
			UnitPrice:    *in.UnitPrice,
		}
		item.RecomputeTotal()
		if err := checkLineTotal(&item); err != nil {
			return err
		}
		if err := s.items.Create(dbc, &item); err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quote item added", "quote_id", quoteID, "item_id", created.ID)
	return newItemView(created, snap), nil
}

// UpdateItem changes an item of the given quote. Items of other quotes are reported as missing.
func (s *LedgerService) UpdateItem(ctx context.Context, quoteID, itemID uint, in UpdateItemInput) (*ItemView, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}
	snap, testID, err := s.resolveHealthTest(ctx, in.HealthTestID)
	if err != nil {
		return nil, err
	}

	var updated models.QuoteItem
	_, err = s.mutate(ctx, "update_item", quoteID, func(dbc dbctx.Context, q *models.Quote) error {
		item, err := s.items.GetForQuote(dbc, q.ID, itemID)
		if err != nil {
			return itemNotFound(err, itemID)
		}
		applyUpdate(item, in, testID)
		if err := checkLineTotal(item); err != nil {
			return err
		}
		if err := s.items.Save(dbc, item); err != nil {
			return itemNotFound(err, itemID)
		}
		updated = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snap == nil && updated.HealthTestID != nil {
		if s2, err := s.catalog.Get(ctx, *updated.HealthTestID); err == nil {
			snap = &s2
		}
	}
	s.log.Info("quote item updated", "quote_id", quoteID, "item_id", itemID)
	return newItemView(updated, snap), nil
}

// UpdateQuoteItem changes an item addressed by id alone and returns the whole quote.
func (s *LedgerService) UpdateQuoteItem(ctx context.Context, itemID uint, in UpdateItemInput) (*QuoteView, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}
	quoteID, err := s.quoteOfItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_, testID, err := s.resolveHealthTest(ctx, in.HealthTestID)
	if err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, "update_quote_item", quoteID, func(dbc dbctx.Context, q *models.Quote) error {
		item, err := s.items.GetForQuote(dbc, q.ID, itemID)
		if err != nil {
			return itemNotFound(err, itemID)
		}
		applyUpdate(item, in, testID)
		if err := checkLineTotal(item); err != nil {
			return err
		}
		if err := s.items.Save(dbc, item); err != nil {
			return itemNotFound(err, itemID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quote item updated", "quote_id", quoteID, "item_id", itemID)
	return s.view(ctx, quoteID)
}

// DeleteItem removes an item of the given quote.
func (s *LedgerService) DeleteItem(ctx context.Context, quoteID, itemID uint) error {
	_, err := s.mutate(ctx, "delete_item", quoteID, func(dbc dbctx.Context, q *models.Quote) error {
		item, err := s.items.GetForQuote(dbc, q.ID, itemID)
		if err != nil {
			return itemNotFound(err, itemID)
		}
		return itemNotFound(s.items.Delete(dbc, item), itemID)
	})
	if err != nil {
		return err
	}
	s.log.Info("quote item deleted", "quote_id", quoteID, "item_id", itemID)
	return nil
}

// DeleteQuoteItem removes an item addressed by id alone and returns the whole quote.
func (s *LedgerService) DeleteQuoteItem(ctx context.Context, itemID uint) (*QuoteView, error) {
	quoteID, err := s.quoteOfItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.DeleteItem(ctx, quoteID, itemID); err != nil {
		return nil, err
	}
	return s.view(ctx, quoteID)
}

// DeleteItems removes several items of one quote. Either every id belongs to the quote
// and all are removed, or nothing changes.
func (s *LedgerService) DeleteItems(ctx context.Context, quoteID uint, itemIDs []uint) (*QuoteView, error) {
	ids := uniqueIDs(itemIDs)
	if len(ids) == 0 {
		return nil, &ValidationError{Violations: validation.Violations{"itemIds": "required"}}
	}
	for _, id := range ids {
		if id == 0 {
			return nil, &ValidationError{Violations: validation.Violations{"itemIds": "must_be_positive"}}
		}
	}

	_, err := s.mutate(ctx, "delete_items", quoteID, func(dbc dbctx.Context, q *models.Quote) error {
		owned, err := s.items.CountOwned(dbc, q.ID, ids)
		if err != nil {
			return err
		}
		if owned != int64(len(ids)) {
			return &NotFoundError{Resource: "quote item", ID: firstMissing(dbc, s.items, q.ID, ids)}
		}
		n, err := s.items.DeleteByIDs(dbc, q.ID, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("deleted %d of %d items", n, len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quote items deleted", "quote_id", quoteID, "count", len(ids))
	return s.view(ctx, quoteID)
}

// Recompute re-derives the stored aggregates of one quote from its items.
func (s *LedgerService) Recompute(ctx context.Context, quoteID uint) (RecomputeResult, error) {
	res := RecomputeResult{QuoteID: quoteID}
	q, err := s.mutate(ctx, "recompute", quoteID, func(_ dbctx.Context, q *models.Quote) error {
		res.Before = q.Totals()
		return nil
	})
	if err != nil {
		return res, err
	}
	res.After = q.Totals()
	if res.Drifted() {
		s.log.Warn("quote aggregates repaired", "quote_id", quoteID,
			"stored_total", res.Before.Total.String(), "computed_total", res.After.Total.String())
	}
	return res, nil
}

// RecomputeAll recomputes every quote with at most workers quotes in flight.
// Per-quote failures are collected in the report; only cancellation aborts the run.
func (s *LedgerService) RecomputeAll(ctx context.Context, workers int) (*RecomputeReport, error) {
	ids, err := s.quotes.ListIDs(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	report := &RecomputeReport{Repaired: []uint{}, Failed: map[uint]string{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := s.Recompute(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch {
			case err != nil:
				report.Failed[id] = err.Error()
			case res.Drifted():
				report.Repaired = append(report.Repaired, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	s.log.Info("recompute finished", "checked", report.Checked, "repaired", len(report.Repaired), "failed", len(report.Failed))
	return report, nil
}

// mutate runs fn and the header recomputation in one transaction with the quote row locked.
// Losing a version race replays the whole unit; after maxAttempts it is a conflict.
func (s *LedgerService) mutate(ctx context.Context, op string, quoteID uint, fn func(dbc dbctx.Context, q *models.Quote) error) (*models.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.Int64("quote.id", int64(quoteID)),
		attribute.String("tax.policy", s.policy.Name()),
	))
	defer span.End()

	var (
		quote *models.Quote
		err   error
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			q, err := s.quotes.LockByID(dbc, quoteID)
			if err != nil {
				if errors.Is(err, repos.ErrNotFound) {
					return &NotFoundError{Resource: "quote", ID: quoteID}
				}
				return err
			}
			if err := fn(dbc, q); err != nil {
				return err
			}
			if err := s.recompute(dbc, q); err != nil {
				return err
			}
			quote = q
			return nil
		})
		if !errors.Is(err, repos.ErrStaleQuote) {
			break
		}
		span.AddEvent("stale quote version", trace.WithAttributes(attribute.Int("attempt", attempt)))
		s.log.Warn("quote changed concurrently, retrying", "quote_id", quoteID, "op", op, "attempt", attempt)
	}
	if errors.Is(err, repos.ErrStaleQuote) {
		err = &ConflictError{Reason: fmt.Sprintf("quote %d kept changing, gave up after %d attempts", quoteID, s.maxAttempts)}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			s.log.Error("ledger mutation failed", "quote_id", quoteID, "op", op, "error", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("quote.total", quote.Total.String()))
	return quote, nil
}

func (s *LedgerService) recompute(dbc dbctx.Context, q *models.Quote) error {
	items, err := s.items.ListByQuote(dbc, q.ID)
	if err != nil {
		return err
	}
	subtotal := Subtotal(items)
	rate, err := s.policy.Rate(dbc.Ctx, q, subtotal)
	if err != nil {
		return fmt.Errorf("resolve tax rate: %w", err)
	}
	totals := ApplyRate(subtotal, rate)
	if !totals.Fits() {
		return &ValidationError{Violations: validation.Violations{"total": "out_of_range"}}
	}
	s.log.Debug("quote recomputed", "quote_id", q.ID, "items", len(items),
		"subtotal", totals.Subtotal.String(), "tax", totals.Tax.String(), "total", totals.Total.String())
	return s.quotes.ApplyTotals(dbc, q, totals)
}

func (s *LedgerService) quoteOfItem(ctx context.Context, itemID uint) (uint, error) {
	item, err := s.items.GetByID(dbctx.Context{Ctx: ctx}, itemID)
	if err != nil {
		return 0, itemNotFound(err, itemID)
	}
	return item.QuoteID, nil
}

// resolveHealthTest looks the test up before any transaction is opened.
func (s *LedgerService) resolveHealthTest(ctx context.Context, raw *decimal.Decimal) (*models.HealthTestSnapshot, *uint, error) {
	if raw == nil {
		return nil, nil, nil
	}
	id := uint(raw.IntPart())
	snap, err := s.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, &NotFoundError{Resource: "health test", ID: id}
	}
	if err != nil {
		return nil, nil, err
	}
	return &snap, &id, nil
}

func (s *LedgerService) view(ctx context.Context, quoteID uint) (*QuoteView, error) {
	return loadView(dbctx.Context{Ctx: ctx}, s.quotes, quoteID, s.currency)
}

func loadView(dbc dbctx.Context, quotes repos.QuoteRepo, quoteID uint, currency string) (*QuoteView, error) {
	q, err := quotes.GetWithDetails(dbc, quoteID)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, &NotFoundError{Resource: "quote", ID: quoteID}
	}
	if err != nil {
		return nil, err
	}
	return newQuoteView(q, currency), nil
}

func validateUpdate(in UpdateItemInput) error {
	v := validation.Violations{}
	if in.Quantity != nil {
		validation.PositiveInteger("quantity", *in.Quantity, v)
	}
	if in.UnitPrice != nil {
		validateUnitPrice(*in.UnitPrice, v)
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		validation.Required("description", d, v)
		validateDescription(d, v)
	}
	if in.HealthTestID != nil {
		validation.PositiveInteger("healthTestId", *in.HealthTestID, v)
	}
	return invalid(v)
}

func validateUnitPrice(price decimal.Decimal, v validation.Violations) {
	validation.PositiveDecimal("unitPrice", price, v)
	validation.MaxPlaces("unitPrice", price, models.MoneyPlaces, v)
	validation.MaxDecimal("unitPrice", price, models.MaxAmount, v)
}

func checkLineTotal(item *models.QuoteItem) error {
	if item.TotalPrice.GreaterThan(models.MaxLineTotal) {
		return &ValidationError{Violations: validation.Violations{"totalPrice": "out_of_range"}}
	}
	return nil
}

func validateDescription(d string, v validation.Violations) {
	if _, exists := v["description"]; exists {
		return
	}
	if len([]rune(d)) > maxDescriptionLen {
		v["description"] = "too_long"
	}
}

// applyUpdate copies the supplied fields and refreshes the line total when an amount changed.
func applyUpdate(item *models.QuoteItem, in UpdateItemInput, healthTestID *uint) {
	if in.Description != nil {
		item.Description = strings.TrimSpace(*in.Description)
	}
	if healthTestID != nil {
		item.HealthTestID = healthTestID
	}
	if in.Quantity != nil {
		item.Quantity = int(in.Quantity.IntPart())
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	}
	if in.Quantity != nil || in.UnitPrice != nil {
		item.RecomputeTotal()
	}
}

func itemNotFound(err error, itemID uint) error {
	if errors.Is(err, repos.ErrNotFound) {
		return &NotFoundError{Resource: "quote item", ID: itemID}
	}
	return err
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// firstMissing names the first id that does not belong to the quote, for the error message.
func firstMissing(dbc dbctx.Context, items repos.QuoteItemRepo, quoteID uint, ids []uint) uint {
	for _, id := range ids {
		if _, err := items.GetForQuote(dbc, quoteID, id); err != nil {
			return id
		}
	}
	return ids[0]
}
