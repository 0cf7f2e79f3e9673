package services

import (
	"github.com/Rhymond/go-money"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/shopspring/decimal"
)

// ItemView is a quote item decorated with its catalog snapshot.
type ItemView struct {
	models.QuoteItem
	HealthTest *models.HealthTestSnapshot `json:"healthTest"`
}

// DisplayAmounts are the header totals formatted for the quote currency.
type DisplayAmounts struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// QuoteView is the combined quote + items read model returned after a mutation.
type QuoteView struct {
	models.Quote
	Items   []ItemView     `json:"items"`
	Display DisplayAmounts `json:"display"`
}

func newItemView(item models.QuoteItem, snap *models.HealthTestSnapshot) *ItemView {
	item.HealthTest = nil
	return &ItemView{QuoteItem: item, HealthTest: snap}
}

func newQuoteView(q *models.Quote, currency string) *QuoteView {
	v := &QuoteView{Quote: *q, Items: make([]ItemView, 0, len(q.Items))}
	for _, it := range q.Items {
		var snap *models.HealthTestSnapshot
		if it.HealthTest != nil {
			s := it.HealthTest.Snapshot()
			snap = &s
		}
		v.Items = append(v.Items, *newItemView(it, snap))
	}
	v.Quote.Items = nil
	v.Display = DisplayAmounts{
		Currency: currency,
		Subtotal: formatMoney(q.Subtotal, currency),
		Tax:      formatMoney(q.Tax, currency),
		Total:    formatMoney(q.Total, currency),
	}
	return v
}

// formatMoney renders d with the currency symbol and separators.
func formatMoney(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return models.Round2(d).StringFixed(models.MoneyPlaces) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}
