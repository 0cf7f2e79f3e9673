package services

import (
	"context"

	"github.com/diewo77/occuhealth/internal/models"
	"github.com/shopspring/decimal"
)

// TaxPolicy resolves the VAT rate applied when a quote is recomputed.
type TaxPolicy interface {
	Name() string
	Rate(ctx context.Context, q *models.Quote, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// FixedRatePolicy applies the same configured rate to every quote.
type FixedRatePolicy struct {
	rate decimal.Decimal
}

func NewFixedRatePolicy(rate decimal.Decimal) *FixedRatePolicy {
	return &FixedRatePolicy{rate: rate}
}

func (p *FixedRatePolicy) Name() string { return "fixed" }

func (p *FixedRatePolicy) Rate(context.Context, *models.Quote, decimal.Decimal) (decimal.Decimal, error) {
	return p.rate, nil
}
