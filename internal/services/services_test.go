package services

import (
	"testing"
	"time"

	"github.com/diewo77/occuhealth/internal/catalog"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/diewo77/occuhealth/internal/repos"
	"github.com/diewo77/occuhealth/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testRate = decimal.RequireFromString("0.18")

type fixture struct {
	db      *gorm.DB
	quotes  repos.QuoteRepo
	items   repos.QuoteItemRepo
	ledger  *LedgerService
	quoteSv *QuoteService
	company *models.Company
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	log := logger.NewNop()
	quotes := repos.NewQuoteRepo(gdb, log)
	items := repos.NewQuoteItemRepo(gdb, log)
	cat := catalog.NewCached(catalog.NewDBCatalog(gdb), time.Minute)
	return &fixture{
		db:      gdb,
		quotes:  quotes,
		items:   items,
		ledger:  NewLedgerService(gdb, quotes, items, cat, NewFixedRatePolicy(testRate), "EUR", log),
		quoteSv: NewQuoteService(gdb, quotes, "EUR", log),
		company: testutil.SeedCompany(t, gdb, "Acme"),
	}
}

func (f *fixture) newQuote(t *testing.T, number string) *models.Quote {
	t.Helper()
	return testutil.SeedQuote(t, f.db, f.company.ID, number)
}

func (f *fixture) reload(t *testing.T, id uint) *models.Quote {
	t.Helper()
	var q models.Quote
	require.NoError(t, f.db.First(&q, id).Error)
	return &q
}

func (f *fixture) itemsOf(t *testing.T, quoteID uint) []models.QuoteItem {
	t.Helper()
	var items []models.QuoteItem
	require.NoError(t, f.db.Where("quote_id = ?", quoteID).Order("id").Find(&items).Error)
	return items
}

// assertConsistent checks the stored header against the stored items.
func (f *fixture) assertConsistent(t *testing.T, quoteID uint) {
	t.Helper()
	q := f.reload(t, quoteID)
	items := f.itemsOf(t, quoteID)
	sum := decimal.Zero
	for _, it := range items {
		assert.True(t, it.TotalPrice.Equal(it.LineTotal()), "item %d total %s != %d x %s", it.ID, it.TotalPrice, it.Quantity, it.UnitPrice)
		sum = sum.Add(it.TotalPrice)
	}
	assert.True(t, q.Subtotal.Equal(sum), "subtotal %s != sum %s", q.Subtotal, sum)
	assert.True(t, q.Tax.Equal(models.Round2(q.Subtotal.Mul(testRate))), "tax %s", q.Tax)
	assert.True(t, q.Total.Equal(models.Round2(q.Subtotal.Add(q.Tax))), "total %s", q.Total)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string { return &s }

func addInput(qty, price, desc string) AddItemInput {
	return AddItemInput{Quantity: dec(qty), UnitPrice: dec(price), Description: str(desc)}
}

func assertTotals(t *testing.T, q *models.Quote, subtotal, tax, total string) {
	t.Helper()
	assert.True(t, q.Subtotal.Equal(decimal.RequireFromString(subtotal)), "subtotal = %s, want %s", q.Subtotal, subtotal)
	assert.True(t, q.Tax.Equal(decimal.RequireFromString(tax)), "tax = %s, want %s", q.Tax, tax)
	assert.True(t, q.Total.Equal(decimal.RequireFromString(total)), "total = %s, want %s", q.Total, total)
}

func decPtrFromUint(id uint) *decimal.Decimal {
	d := decimal.NewFromInt(int64(id))
	return &d
}
