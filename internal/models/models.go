package models

import "github.com/shopspring/decimal"

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MoneyPlaces is the number of fractional digits stored for amounts.
const MoneyPlaces = 2

// Largest values the decimal(12,2) and decimal(14,2) columns hold.
var (
	MaxAmount    = decimal.RequireFromString("9999999999.99")
	MaxLineTotal = decimal.RequireFromString("999999999999.99")
)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// QuoteTotals are the aggregates derived from a quote's line items.
type QuoteTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Fits reports whether every aggregate fits the header columns.
func (t QuoteTotals) Fits() bool {
	return !t.Subtotal.GreaterThan(MaxAmount) && !t.Tax.GreaterThan(MaxAmount) && !t.Total.GreaterThan(MaxAmount)
}

// Equal compares totals by value.
func (t QuoteTotals) Equal(o QuoteTotals) bool {
	return t.Subtotal.Equal(o.Subtotal) && t.Tax.Equal(o.Tax) && t.Total.Equal(o.Total)
}
