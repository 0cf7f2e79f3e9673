package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuoteStatus represents the status of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

// QuoteStatuses lists every known status.
var QuoteStatuses = []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRejected}

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft:    {QuoteStatusSent},
	QuoteStatusSent:     {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusDraft},
	QuoteStatusAccepted: {},
	QuoteStatusRejected: {QuoteStatusDraft},
}

// Valid reports whether s is a known status.
func (s QuoteStatus) Valid() bool {
	_, ok := quoteTransitions[s]
	return ok
}

// CanTransitionTo reports whether a quote in status s may move to next.
// Staying in the same status is always allowed.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Quote is a priced proposal sent to a company.
// Subtotal, Tax and Total mirror the aggregation over Items and are only
// written by the ledger (or supplied once at creation).
type Quote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	CompanyID uint     `gorm:"index;not null" json:"companyId"`
	Company   *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`

	QuoteNumber    string    `gorm:"size:50;not null;uniqueIndex" json:"quoteNumber"`
	IssueDate      time.Time `gorm:"not null" json:"issueDate"`
	ValidUntilDate time.Time `gorm:"not null" json:"validUntilDate"`

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`

	Notes  string      `gorm:"type:text" json:"notes,omitempty"`
	Status QuoteStatus `gorm:"size:20;not null;default:'draft'" json:"status"`

	// Version is bumped on every totals write; a mismatch means a concurrent recompute won.
	Version uint `gorm:"not null;default:0" json:"version"`

	Items []QuoteItem `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// Totals returns the stored aggregates.
func (q *Quote) Totals() QuoteTotals {
	return QuoteTotals{Subtotal: q.Subtotal, Tax: q.Tax, Total: q.Total}
}

// IsDraft returns true if the quote is in draft status.
func (q *Quote) IsDraft() bool {
	return q.Status == QuoteStatusDraft
}

// QuoteItem represents a line item on a quote.
type QuoteItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Parent quote
	QuoteID uint `gorm:"index;not null" json:"quoteId"`

	// Optional catalog reference
	HealthTestID *uint       `gorm:"index" json:"healthTestId,omitempty"`
	HealthTest   *HealthTest `gorm:"foreignKey:HealthTestID;constraint:OnDelete:SET NULL" json:"-"`

	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"totalPrice"`
}

// LineTotal calculates quantity × unit price.
func (item *QuoteItem) LineTotal() decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// RecomputeTotal refreshes TotalPrice from Quantity and UnitPrice.
func (item *QuoteItem) RecomputeTotal() {
	item.TotalPrice = item.LineTotal()
}

// QuoteNumberPrefix returns the prefix shared by quote numbers issued in year.
func QuoteNumberPrefix(year int) string {
	return fmt.Sprintf("DEV-%d-", year)
}

// GenerateQuoteNumber generates the next quote number for the year, one past the
// highest sequence already issued so gaps left by deleted quotes are never reused.
// Format: DEV-YYYY-NNNN (e.g., DEV-2026-0001)
func GenerateQuoteNumber(db *gorm.DB, year int) (string, error) {
	prefix := QuoteNumberPrefix(year)
	var numbers []string
	err := db.Model(&Quote{}).
		Where("quote_number LIKE ?", prefix+"%").
		Pluck("quote_number", &numbers).Error
	if err != nil {
		return "", err
	}
	last := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err != nil {
			continue
		}
		if seq > last {
			last = seq
		}
	}
	return fmt.Sprintf("%s%04d", prefix, last+1), nil
}
