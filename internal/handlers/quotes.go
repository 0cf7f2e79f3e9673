package handlers

import (
	"net/http"

	"github.com/diewo77/occuhealth/httpx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/go-chi/chi/v5"
)

type QuoteHandler struct {
	Quotes *services.QuoteService
	Log    *logger.Logger
}

func NewQuoteHandler(quotes *services.QuoteService, log *logger.Logger) *QuoteHandler {
	return &QuoteHandler{Quotes: quotes, Log: log.With("handler", "QuoteHandler")}
}

func (h *QuoteHandler) Register(r chi.Router) {
	r.Get("/quotes/{quoteId}", h.Get)
	r.Patch("/quotes/{quoteId}/status", h.ChangeStatus)
}

// Get: GET /quotes/{quoteId}
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	view, err := h.Quotes.GetQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// ChangeStatus: PATCH /quotes/{quoteId}/status with {"status": "..."}
func (h *QuoteHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(w, r, "quoteId")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.Quotes.ChangeStatus(r.Context(), quoteID, req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
