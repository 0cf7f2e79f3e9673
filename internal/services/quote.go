package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/occuhealth/internal/dbctx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/diewo77/occuhealth/internal/repos"
	"github.com/diewo77/occuhealth/validation"
	"gorm.io/gorm"
)

// DefaultValidity is how long a quote stays valid when no end date is given.
const DefaultValidity = 30 * 24 * time.Hour

// CreateQuoteInput describes a new, empty quote.
type CreateQuoteInput struct {
	CompanyID      uint
	QuoteNumber    string // generated when empty
	IssueDate      time.Time
	ValidUntilDate time.Time
	Notes          string
}

// QuoteService manages quote headers: creation, status and reads.
type QuoteService struct {
	db       *gorm.DB
	quotes   repos.QuoteRepo
	currency string
	log      *logger.Logger
	now      func() time.Time
}

func NewQuoteService(db *gorm.DB, quotes repos.QuoteRepo, currency string, baseLog *logger.Logger) *QuoteService {
	return &QuoteService{
		db:       db,
		quotes:   quotes,
		currency: currency,
		log:      baseLog.With("service", "QuoteService"),
		now:      time.Now,
	}
}

// CreateQuote inserts a draft quote with zero totals.
func (s *QuoteService) CreateQuote(ctx context.Context, in CreateQuoteInput) (*models.Quote, error) {
	v := validation.Violations{}
	if in.CompanyID == 0 {
		v["companyId"] = "required"
	}
	issue := in.IssueDate
	if issue.IsZero() {
		issue = s.now().UTC().Truncate(24 * time.Hour)
	}
	until := in.ValidUntilDate
	if until.IsZero() {
		until = issue.Add(DefaultValidity)
	}
	if until.Before(issue) {
		v["validUntilDate"] = "before_issue_date"
	}
	number := strings.TrimSpace(in.QuoteNumber)
	if len(number) > 50 {
		v["quoteNumber"] = "too_long"
	}
	if err := invalid(v); err != nil {
		return nil, err
	}

	q := &models.Quote{
		CompanyID:      in.CompanyID,
		QuoteNumber:    number,
		IssueDate:      issue,
		ValidUntilDate: until,
		Notes:          in.Notes,
		Status:         models.QuoteStatusDraft,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var count int64
		if err := tx.Model(&models.Company{}).Where("id = ?", in.CompanyID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return &NotFoundError{Resource: "company", ID: in.CompanyID}
		}
		if q.QuoteNumber == "" {
			n, err := models.GenerateQuoteNumber(tx, issue.Year())
			if err != nil {
				return fmt.Errorf("generate quote number: %w", err)
			}
			q.QuoteNumber = n
		}
		exists, err := s.quotes.NumberExists(dbc, q.QuoteNumber)
		if err != nil {
			return err
		}
		if exists {
			return repos.ErrDuplicateNumber
		}
		return s.quotes.Create(dbc, q)
	})
	if errors.Is(err, repos.ErrDuplicateNumber) {
		return nil, &ConflictError{Reason: fmt.Sprintf("quote number %s already exists", q.QuoteNumber)}
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("quote created", "quote_id", q.ID, "quote_number", q.QuoteNumber, "company_id", q.CompanyID)
	return q, nil
}

// GetQuote returns the full read model of a quote.
func (s *QuoteService) GetQuote(ctx context.Context, quoteID uint) (*QuoteView, error) {
	return loadView(dbctx.Context{Ctx: ctx}, s.quotes, quoteID, s.currency)
}

// ChangeStatus moves a quote along the status table. Staying in place is a no-op.
func (s *QuoteService) ChangeStatus(ctx context.Context, quoteID uint, status string) (*QuoteView, error) {
	next := models.QuoteStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, &ValidationError{Violations: validation.Violations{"status": "invalid_choice"}}
	}

	var from models.QuoteStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		q, err := s.quotes.LockByID(dbc, quoteID)
		if errors.Is(err, repos.ErrNotFound) {
			return &NotFoundError{Resource: "quote", ID: quoteID}
		}
		if err != nil {
			return err
		}
		from = q.Status
		if q.Status == next {
			return nil
		}
		if !q.Status.CanTransitionTo(next) {
			return &ConflictError{Reason: fmt.Sprintf("cannot move quote from %s to %s", q.Status, next)}
		}
		return s.quotes.UpdateStatus(dbc, q, next)
	})
	if err != nil {
		return nil, err
	}
	if from != next {
		s.log.Info("quote status changed", "quote_id", quoteID, "from", from, "to", next)
	}
	return s.GetQuote(ctx, quoteID)
}
