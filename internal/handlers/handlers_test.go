package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/occuhealth/internal/catalog"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/diewo77/occuhealth/internal/repos"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/diewo77/occuhealth/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	log := logger.NewNop()
	quotes := repos.NewQuoteRepo(db, log)
	items := repos.NewQuoteItemRepo(db, log)
	cat := catalog.NewCached(catalog.NewDBCatalog(db), time.Minute)
	ledger := services.NewLedgerService(db, quotes, items, cat, services.NewFixedRatePolicy(decimal.RequireFromString("0.18")), "EUR", log)

	r := chi.NewRouter()
	NewQuoteItemHandler(ledger, log).Register(r)
	NewQuoteHandler(services.NewQuoteService(db, quotes, "EUR", log), log).Register(r)
	return r, db
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestCreateItem_RecomputesQuote(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")
	ht := testutil.SeedHealthTest(t, db, "AUDIO", "Audiométrie")

	w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":1,"unitPrice":1000,"description":"Visite"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	body := fmt.Sprintf(`{"quantity":2,"unitPrice":"50.00","description":"Audiométrie","healthTestId":%d}`, ht.ID)
	w = do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	item := decodeMap(t, w)
	if item["totalPrice"] != float64(100) {
		t.Errorf("totalPrice = %v", item["totalPrice"])
	}
	snap, ok := item["healthTest"].(map[string]any)
	if !ok || snap["code"] != "AUDIO" || snap["name"] != "Audiométrie" {
		t.Errorf("healthTest snapshot = %v", item["healthTest"])
	}

	w = do(t, h, http.MethodGet, fmt.Sprintf("/quotes/%d", q.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	view := decodeMap(t, w)
	if view["subtotal"] != float64(1100) || view["tax"] != float64(198) || view["total"] != float64(1298) {
		t.Errorf("unexpected totals: %v / %v / %v", view["subtotal"], view["tax"], view["total"])
	}
	if items, _ := view["items"].([]any); len(items) != 2 {
		t.Errorf("expected 2 items, got %v", view["items"])
	}
}

func TestCreateItem_Errors(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":`, http.StatusBadRequest, "invalid_json"},
		{"fractional quantity", fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":1.5,"unitPrice":10,"description":"x"}`, http.StatusBadRequest, "validation_failed"},
		{"empty body", fmt.Sprintf("/quotes/%d/items", q.ID), ``, http.StatusBadRequest, "validation_failed"},
		{"unknown quote", "/quotes/9999/items", `{"quantity":1,"unitPrice":10,"description":"x"}`, http.StatusNotFound, "not_found"},
		{"unknown health test", fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":1,"unitPrice":10,"description":"x","healthTestId":777}`, http.StatusNotFound, "not_found"},
		{"bad quote id", "/quotes/abc/items", `{}`, http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d got %d body=%s", tt.status, w.Code, w.Body.String())
			}
			if got := decodeMap(t, w)["error"]; got != tt.code {
				t.Errorf("error = %v, want %s", got, tt.code)
			}
		})
	}

	var count int64
	db.Model(&models.QuoteItem{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected requests created %d items", count)
	}
}

func TestCreateItem_ValidationDetails(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")

	w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":0,"unitPrice":-1,"description":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	details, _ := decodeMap(t, w)["details"].(map[string]any)
	want := map[string]string{"quantity": "must_be_positive", "unitPrice": "must_be_positive", "description": "required"}
	for field, reason := range want {
		if details[field] != reason {
			t.Errorf("details[%s] = %v, want %s", field, details[field], reason)
		}
	}
}

func TestScopedItemRoutes(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q1 := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")
	q2 := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0002")

	w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q1.ID), `{"quantity":2,"unitPrice":50,"description":"Audio"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	itemID := uint(decodeMap(t, w)["id"].(float64))

	// wrong quote
	w = do(t, h, http.MethodPatch, fmt.Sprintf("/quotes/%d/items/%d", q2.ID, itemID), `{"quantity":5}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign quote got %d", w.Code)
	}
	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quotes/%d/items/%d", q2.ID, itemID), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign quote got %d", w.Code)
	}

	w = do(t, h, http.MethodPatch, fmt.Sprintf("/quotes/%d/items/%d", q1.ID, itemID), `{"quantity":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w)["totalPrice"]; got != float64(250) {
		t.Errorf("totalPrice = %v", got)
	}

	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quotes/%d/items/%d", q1.ID, itemID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	resp := decodeMap(t, w)
	if resp["deleted"] != true || resp["id"] != float64(itemID) {
		t.Errorf("unexpected delete response %v", resp)
	}

	var stored models.Quote
	db.First(&stored, q1.ID)
	if !stored.Total.IsZero() {
		t.Errorf("expected zero total after deleting last item, got %s", stored.Total)
	}
}

func TestUnscopedItemRoutesReturnQuote(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")
	do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":1,"unitPrice":1000,"description":"Visite"}`)
	w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), `{"quantity":2,"unitPrice":50,"description":"Audio"}`)
	itemID := uint(decodeMap(t, w)["id"].(float64))

	w = do(t, h, http.MethodPatch, fmt.Sprintf("/quote-items/%d", itemID), `{"unitPrice":75}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	view := decodeMap(t, w)
	if view["subtotal"] != float64(1150) || view["total"] != float64(1357) {
		t.Errorf("unexpected totals %v / %v", view["subtotal"], view["total"])
	}
	if view["quoteNumber"] != "DEV-2026-0001" {
		t.Errorf("quoteNumber = %v", view["quoteNumber"])
	}
	if _, ok := view["company"].(map[string]any); !ok {
		t.Errorf("expected company header, got %v", view["company"])
	}

	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quote-items/%d", itemID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	view = decodeMap(t, w)
	if items, _ := view["items"].([]any); len(items) != 1 {
		t.Errorf("expected 1 remaining item, got %v", view["items"])
	}
	if view["total"] != float64(1180) {
		t.Errorf("total = %v", view["total"])
	}

	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quote-items/%d", itemID), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete got %d", w.Code)
	}
}

func TestBulkDelete(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")
	a := testutil.SeedItem(t, db, q.ID, 1, "10", "A")
	b := testutil.SeedItem(t, db, q.ID, 1, "20", "B")

	w := do(t, h, http.MethodDelete, fmt.Sprintf("/quotes/%d/items", q.ID), `{"itemIds":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty list got %d", w.Code)
	}
	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quotes/%d/items", q.ID), fmt.Sprintf(`{"itemIds":[%d,%d]}`, a.ID, b.ID+100))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id got %d", w.Code)
	}
	w = do(t, h, http.MethodDelete, fmt.Sprintf("/quotes/%d/items", q.ID), fmt.Sprintf(`{"itemIds":[%d,%d]}`, a.ID, b.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("bulk delete: %d %s", w.Code, w.Body.String())
	}
	if view := decodeMap(t, w); view["total"] != float64(0) {
		t.Errorf("total = %v", view["total"])
	}
}

func TestChangeStatus(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")

	tests := []struct {
		body   string
		status int
	}{
		{`{"status":"accepted"}`, http.StatusConflict},
		{`{"status":"bogus"}`, http.StatusBadRequest},
		{`{"status":"sent"}`, http.StatusOK},
		{`{"status":"accepted"}`, http.StatusOK},
		{`{"status":"draft"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPatch, fmt.Sprintf("/quotes/%d/status", q.ID), tt.body)
		if w.Code != tt.status {
			t.Fatalf("%s: expected %d got %d body=%s", tt.body, tt.status, w.Code, w.Body.String())
		}
	}

	w := do(t, h, http.MethodGet, "/quotes/4242", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestPatchItemHealthTest(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")
	audio := testutil.SeedHealthTest(t, db, "AUDIO", "Audiométrie")
	spiro := testutil.SeedHealthTest(t, db, "SPIRO", "Spirométrie")

	body := fmt.Sprintf(`{"quantity":1,"unitPrice":80,"description":"Examen","healthTestId":%d}`, audio.ID)
	w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	itemID := uint(decodeMap(t, w)["id"].(float64))
	path := fmt.Sprintf("/quotes/%d/items/%d", q.ID, itemID)

	w = do(t, h, http.MethodPatch, path, fmt.Sprintf(`{"healthTestId":%d}`, spiro.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	snap, _ := decodeMap(t, w)["healthTest"].(map[string]any)
	if snap["code"] != "SPIRO" {
		t.Errorf("healthTest = %v, want SPIRO snapshot", snap)
	}

	var before models.Quote
	db.First(&before, q.ID)

	w = do(t, h, http.MethodPatch, path, fmt.Sprintf(`{"quantity":4,"healthTestId":%d}`, spiro.ID+40))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
	details, _ := decodeMap(t, w)["details"].(map[string]any)
	if details["resource"] != "health test" {
		t.Errorf("details = %v", details)
	}

	var item models.QuoteItem
	db.First(&item, itemID)
	if item.Quantity != 1 || item.HealthTestID == nil || *item.HealthTestID != spiro.ID {
		t.Errorf("item changed after rejected update: %+v", item)
	}
	var after models.Quote
	db.First(&after, q.ID)
	if after.Version != before.Version || !after.Total.Equal(before.Total) {
		t.Errorf("quote changed after rejected update: version %d->%d total %s->%s", before.Version, after.Version, before.Total, after.Total)
	}
}

func TestCreateItem_AmountOutOfRange(t *testing.T) {
	h, db := setupRouter(t)
	c := testutil.SeedCompany(t, db, "Acme")
	q := testutil.SeedQuote(t, db, c.ID, "DEV-2026-0001")

	tests := []struct {
		body  string
		field string
	}{
		{`{"quantity":2147483647,"unitPrice":123456789012345.67,"description":"x"}`, "unitPrice"},
		{`{"quantity":1000,"unitPrice":9999999999.99,"description":"x"}`, "totalPrice"},
		{`{"quantity":1,"unitPrice":9999999999.99,"description":"x"}`, "total"},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPost, fmt.Sprintf("/quotes/%d/items", q.ID), tt.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d body=%s", tt.body, w.Code, w.Body.String())
		}
		details, _ := decodeMap(t, w)["details"].(map[string]any)
		if details[tt.field] != "out_of_range" {
			t.Errorf("%s: details = %v, want %s out_of_range", tt.body, details, tt.field)
		}
	}

	var count int64
	db.Model(&models.QuoteItem{}).Where("quote_id = ?", q.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected no stored items, got %d", count)
	}
}
