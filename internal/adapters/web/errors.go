package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"commerce-engine/internal/core"
)

type errorResponse struct {
	Error      string           `json:"error"`
	Code       string           `json:"code"`
	RequestID  string           `json:"request_id,omitempty"`
	Shortfalls []core.Shortfall `json:"shortfalls,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps a core error to its HTTP shape. Insufficient-stock
// responses carry the structured per-item shortfall report.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *core.InsufficientStockError
		conflict     *core.ReservationConflictError
		notFound     *core.ProductNotFoundError
		invalidRate  *core.InvalidRateConfigurationError
		timedOut     *core.PaymentTimeoutError
	)
	switch {
	case errors.As(err, &insufficient):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error:      err.Error(),
			Code:       "INSUFFICIENT_STOCK",
			RequestID:  requestIDFromContext(r.Context()),
			Shortfalls: insufficient.Shortfalls,
		})
	case errors.As(err, &conflict):
		writeError(w, r, err.Error(), "RESERVATION_CONFLICT", http.StatusConflict)
	case errors.As(err, &notFound):
		writeError(w, r, err.Error(), "PRODUCT_NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &invalidRate):
		writeError(w, r, err.Error(), "INVALID_RATE", http.StatusUnprocessableEntity)
	case errors.As(err, &timedOut):
		writeError(w, r, err.Error(), "PAYMENT_TIMEOUT", http.StatusConflict)
	case errors.Is(err, core.ErrInvalidID):
		writeError(w, r, err.Error(), "INVALID_ID", http.StatusBadRequest)
	default:
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
