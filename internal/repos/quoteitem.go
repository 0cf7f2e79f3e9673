package repos

import (
	"github.com/diewo77/occuhealth/internal/dbctx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuoteItemRepo is the line-item store.
type QuoteItemRepo interface {
	Create(dbc dbctx.Context, item *models.QuoteItem) error
	GetByID(dbc dbctx.Context, id uint) (*models.QuoteItem, error)
	GetForQuote(dbc dbctx.Context, quoteID, itemID uint) (*models.QuoteItem, error)
	Save(dbc dbctx.Context, item *models.QuoteItem) error
	Delete(dbc dbctx.Context, item *models.QuoteItem) error
	DeleteByIDs(dbc dbctx.Context, quoteID uint, ids []uint) (int64, error)
	CountOwned(dbc dbctx.Context, quoteID uint, ids []uint) (int64, error)
	ListByQuote(dbc dbctx.Context, quoteID uint) ([]models.QuoteItem, error)
}

type quoteItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuoteItemRepo(db *gorm.DB, baseLog *logger.Logger) QuoteItemRepo {
	return &quoteItemRepo{
		db:  db,
		log: baseLog.With("repo", "QuoteItemRepo"),
	}
}

func (r *quoteItemRepo) Create(dbc dbctx.Context, item *models.QuoteItem) error {
	return dbc.DB(r.db).Omit(clause.Associations).Create(item).Error
}

func (r *quoteItemRepo) GetByID(dbc dbctx.Context, id uint) (*models.QuoteItem, error) {
	var item models.QuoteItem
	if err := dbc.DB(r.db).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// GetForQuote returns the item only when it belongs to quoteID; otherwise ErrNotFound.
func (r *quoteItemRepo) GetForQuote(dbc dbctx.Context, quoteID, itemID uint) (*models.QuoteItem, error) {
	var item models.QuoteItem
	err := dbc.DB(r.db).Where("id = ? AND quote_id = ?", itemID, quoteID).First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// Save writes the mutable columns of an existing item.
func (r *quoteItemRepo) Save(dbc dbctx.Context, item *models.QuoteItem) error {
	res := dbc.DB(r.db).Model(item).
		Select("health_test_id", "description", "quantity", "unit_price", "total_price", "updated_at").
		Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quoteItemRepo) Delete(dbc dbctx.Context, item *models.QuoteItem) error {
	res := dbc.DB(r.db).Delete(&models.QuoteItem{}, item.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDs removes the given items of quoteID and reports how many rows went away.
func (r *quoteItemRepo) DeleteByIDs(dbc dbctx.Context, quoteID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("quote_id = ? AND id IN ?", quoteID, ids).Delete(&models.QuoteItem{})
	return res.RowsAffected, res.Error
}

// CountOwned counts how many of ids belong to quoteID.
func (r *quoteItemRepo) CountOwned(dbc dbctx.Context, quoteID uint, ids []uint) (int64, error) {
	var count int64
	if len(ids) == 0 {
		return 0, nil
	}
	err := dbc.DB(r.db).Model(&models.QuoteItem{}).
		Where("quote_id = ? AND id IN ?", quoteID, ids).
		Count(&count).Error
	return count, err
}

// ListByQuote returns the items of a quote in creation order.
func (r *quoteItemRepo) ListByQuote(dbc dbctx.Context, quoteID uint) ([]models.QuoteItem, error) {
	var items []models.QuoteItem
	err := dbc.DB(r.db).Where("quote_id = ?", quoteID).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
