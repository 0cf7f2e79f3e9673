package handlers

import (
	"net/http"

	"github.com/diewo77/occuhealth/httpx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/go-chi/chi/v5"
)

// QuoteItemHandler serves line-item mutations. Every successful call leaves the quote
// totals recomputed.
type QuoteItemHandler struct {
	Ledger *services.LedgerService
	Log    *logger.Logger
}

func NewQuoteItemHandler(ledger *services.LedgerService, log *logger.Logger) *QuoteItemHandler {
	return &QuoteItemHandler{Ledger: ledger, Log: log.With("handler", "QuoteItemHandler")}
}

// Register mounts the item routes.
func (h *QuoteItemHandler) Register(r chi.Router) {
	r.Route("/quotes/{quoteId}/items", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Delete("/", h.DeleteMany)
		r.Patch("/{itemId}", h.Update)
		r.Delete("/{itemId}", h.Delete)
	})
	r.Patch("/quote-items/{itemId}", h.UpdateByID)
	r.Delete("/quote-items/{itemId}", h.DeleteByID)
}

type deleteManyRequest struct {
	ItemIDs []uint `json:"itemIds"`
}

type deletedResponse struct {
	Deleted bool `json:"deleted"`
	ID      uint `json:"id"`
}

// Create: POST /quotes/{quoteId}/items
func (h *QuoteItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	var in services.AddItemInput
	if !decodeBody(w, r, &in) {
		return
	}
	item, err := h.Ledger.AddItem(r.Context(), quoteID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

// Update: PATCH /quotes/{quoteId}/items/{itemId}
func (h *QuoteItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var in services.UpdateItemInput
	if !decodeBody(w, r, &in) {
		return
	}
	item, err := h.Ledger.UpdateItem(r.Context(), quoteID, itemID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

// Delete: DELETE /quotes/{quoteId}/items/{itemId}
func (h *QuoteItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	if err := h.Ledger.DeleteItem(r.Context(), quoteID, itemID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deletedResponse{Deleted: true, ID: itemID})
}

// DeleteMany: DELETE /quotes/{quoteId}/items with {"itemIds": [...]}
func (h *QuoteItemHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	var req deleteManyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.Ledger.DeleteItems(r.Context(), quoteID, req.ItemIDs)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// UpdateByID: PATCH /quote-items/{itemId}, returns the whole quote.
func (h *QuoteItemHandler) UpdateByID(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var in services.UpdateItemInput
	if !decodeBody(w, r, &in) {
		return
	}
	view, err := h.Ledger.UpdateQuoteItem(r.Context(), itemID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// DeleteByID: DELETE /quote-items/{itemId}, returns the whole quote.
func (h *QuoteItemHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	view, err := h.Ledger.DeleteQuoteItem(r.Context(), itemID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
