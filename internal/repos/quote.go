package repos

import (
	"errors"
	"time"

	"github.com/diewo77/occuhealth/internal/dbctx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuoteRepo interface {
	Create(dbc dbctx.Context, q *models.Quote) error
	GetByID(dbc dbctx.Context, id uint) (*models.Quote, error)
	GetWithDetails(dbc dbctx.Context, id uint) (*models.Quote, error)
	LockByID(dbc dbctx.Context, id uint) (*models.Quote, error)
	ApplyTotals(dbc dbctx.Context, q *models.Quote, totals models.QuoteTotals) error
	UpdateStatus(dbc dbctx.Context, q *models.Quote, status models.QuoteStatus) error
	ListIDs(dbc dbctx.Context) ([]uint, error)
	NumberExists(dbc dbctx.Context, number string) (bool, error)
}

type quoteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuoteRepo(db *gorm.DB, baseLog *logger.Logger) QuoteRepo {
	return &quoteRepo{
		db:  db,
		log: baseLog.With("repo", "QuoteRepo"),
	}
}

func (r *quoteRepo) Create(dbc dbctx.Context, q *models.Quote) error {
	err := dbc.DB(r.db).Omit(clause.Associations).Create(q).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateNumber
	}
	return err
}

func (r *quoteRepo) GetByID(dbc dbctx.Context, id uint) (*models.Quote, error) {
	var q models.Quote
	if err := dbc.DB(r.db).First(&q, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// GetWithDetails loads the quote with its company header and items (id ascending, with catalog entries).
func (r *quoteRepo) GetWithDetails(dbc dbctx.Context, id uint) (*models.Quote, error) {
	var q models.Quote
	err := dbc.DB(r.db).
		Preload("Company").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("quote_items.id ASC") }).
		Preload("Items.HealthTest").
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// LockByID reads the quote header and holds a row lock until the transaction ends.
func (r *quoteRepo) LockByID(dbc dbctx.Context, id uint) (*models.Quote, error) {
	if dbc.Tx == nil {
		return nil, errors.New("LockByID requires a transaction")
	}
	var q models.Quote
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// ApplyTotals writes the aggregates if the stored version still matches q.Version,
// then bumps q's version in place. Returns ErrStaleQuote otherwise.
func (r *quoteRepo) ApplyTotals(dbc dbctx.Context, q *models.Quote, totals models.QuoteTotals) error {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&models.Quote{}).
		Where("id = ? AND version = ?", q.ID, q.Version).
		Updates(map[string]any{
			"subtotal":   totals.Subtotal,
			"tax":        totals.Tax,
			"total":      totals.Total,
			"version":    q.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("stale quote version", "quote_id", q.ID, "version", q.Version)
		return ErrStaleQuote
	}
	q.Subtotal, q.Tax, q.Total = totals.Subtotal, totals.Tax, totals.Total
	q.Version++
	q.UpdatedAt = now
	return nil
}

func (r *quoteRepo) UpdateStatus(dbc dbctx.Context, q *models.Quote, status models.QuoteStatus) error {
	now := time.Now().UTC()
	err := dbc.DB(r.db).Model(&models.Quote{}).
		Where("id = ?", q.ID).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
	if err != nil {
		return err
	}
	q.Status = status
	q.UpdatedAt = now
	return nil
}

func (r *quoteRepo) ListIDs(dbc dbctx.Context) ([]uint, error) {
	var ids []uint
	if err := dbc.DB(r.db).Model(&models.Quote{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *quoteRepo) NumberExists(dbc dbctx.Context, number string) (bool, error) {
	var count int64
	err := dbc.DB(r.db).Model(&models.Quote{}).Where("quote_number = ?", number).Count(&count).Error
	return count > 0, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
