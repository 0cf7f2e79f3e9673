package services

import (
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/shopspring/decimal"
)

// Subtotal sums the stored line totals, rounded to cents.
func Subtotal(items []models.QuoteItem) decimal.Decimal {
	sum := decimal.Zero
	for i := range items {
		sum = sum.Add(items[i].TotalPrice)
	}
	return models.Round2(sum)
}

// ApplyRate derives tax and total from a subtotal.
func ApplyRate(subtotal, rate decimal.Decimal) models.QuoteTotals {
	subtotal = models.Round2(subtotal)
	tax := models.Round2(subtotal.Mul(rate))
	return models.QuoteTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    models.Round2(subtotal.Add(tax)),
	}
}

// Recalculate aggregates items at the given rate. It has no side effects.
func Recalculate(items []models.QuoteItem, rate decimal.Decimal) models.QuoteTotals {
	return ApplyRate(Subtotal(items), rate)
}
