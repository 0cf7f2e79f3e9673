// Package handlers exposes the quote ledger over JSON HTTP endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diewo77/occuhealth/httpx"
	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/services"
	"github.com/go-chi/chi/v5"
)

// writeError maps service errors onto status codes and the JSON error envelope.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	var (
		verr     *services.ValidationError
		notFound *services.NotFoundError
		conflict *services.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", verr.Violations)
	case errors.As(err, &notFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", map[string]any{"resource": notFound.Resource, "id": notFound.ID})
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.As(err, &conflict):
		httpx.JSONError(w, http.StatusConflict, "conflict", conflict.Reason)
	case errors.Is(err, services.ErrConflict):
		httpx.JSONError(w, http.StatusConflict, "conflict", nil)
	default:
		log.Error("request failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// pathID reads a positive integer URL parameter. On failure it writes a 400 and returns false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{name: "invalid_id"})
		return 0, false
	}
	return uint(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.Decode(r, dst); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}
