package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompany_FullAddress(t *testing.T) {
	tests := []struct {
		name    string
		company Company
		want    string
	}{
		{
			name: "full address",
			company: Company{
				Address:    "12 rue des Lilas",
				PostalCode: "69003",
				City:       "Lyon",
				Country:    "France",
			},
			want: "12 rue des Lilas\n69003 Lyon\nFrance",
		},
		{
			name:    "only city",
			company: Company{City: "Lyon"},
			want:    "Lyon",
		},
		{
			name:    "empty",
			company: Company{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.company.FullAddress(); got != tt.want {
				t.Errorf("FullAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuoteStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to QuoteStatus
		want     bool
	}{
		{QuoteStatusDraft, QuoteStatusSent, true},
		{QuoteStatusDraft, QuoteStatusAccepted, false},
		{QuoteStatusDraft, QuoteStatusRejected, false},
		{QuoteStatusSent, QuoteStatusAccepted, true},
		{QuoteStatusSent, QuoteStatusRejected, true},
		{QuoteStatusSent, QuoteStatusDraft, true},
		{QuoteStatusAccepted, QuoteStatusDraft, false},
		{QuoteStatusAccepted, QuoteStatusRejected, false},
		{QuoteStatusRejected, QuoteStatusDraft, true},
		{QuoteStatusRejected, QuoteStatusAccepted, false},
		{QuoteStatusAccepted, QuoteStatusAccepted, true},
		{QuoteStatus("archived"), QuoteStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuoteItem_LineTotal(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		unitPrice string
		want      string
	}{
		{"two audiometries", 2, "50", "100"},
		{"cents", 3, "19.99", "59.97"},
		{"single", 1, "500.00", "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &QuoteItem{Quantity: tt.quantity, UnitPrice: d(tt.unitPrice)}
			item.RecomputeTotal()
			if !item.TotalPrice.Equal(d(tt.want)) {
				t.Errorf("TotalPrice = %s, want %s", item.TotalPrice, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-1.005", "-1.01"},
		{"198", "198"},
	}
	for _, tt := range tests {
		if got := Round2(d(tt.in)); !got.Equal(d(tt.want)) {
			t.Errorf("Round2(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteTotals_Fits(t *testing.T) {
	tests := []struct {
		name string
		t    QuoteTotals
		want bool
	}{
		{"zero", QuoteTotals{}, true},
		{"at limit", QuoteTotals{Subtotal: d("8474576271.18"), Tax: d("1525423728.81"), Total: d("9999999999.99")}, true},
		{"total over", QuoteTotals{Subtotal: d("9000000000"), Tax: d("1620000000"), Total: d("10620000000")}, false},
		{"subtotal over", QuoteTotals{Subtotal: d("10000000000"), Tax: d("0"), Total: d("10000000000")}, false},
	}
	for _, tt := range tests {
		if got := tt.t.Fits(); got != tt.want {
			t.Errorf("%s: Fits() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestQuoteItem_JSONAmountsAreNumbers(t *testing.T) {
	item := QuoteItem{ID: 1, QuoteID: 2, Quantity: 2, UnitPrice: d("50.5"), Description: "Spirometry"}
	item.RecomputeTotal()
	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `"unitPrice":50.5`) || !strings.Contains(body, `"totalPrice":101`) {
		t.Errorf("unexpected JSON: %s", body)
	}
	if strings.Contains(body, "healthTestId") {
		t.Errorf("nil healthTestId should be omitted: %s", body)
	}
}
