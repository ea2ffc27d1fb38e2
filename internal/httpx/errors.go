package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/ariefcatur/go-realtime-inventory/internal/redisx"
	"go.uber.org/zap"
)

const (
	CodeEntityNotFound       = "ENTITY_NOT_FOUND"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeNoActiveReservations = "NO_ACTIVE_RESERVATIONS"
	CodeLockTimeout          = "LOCK_TIMEOUT"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeRequestInFlight      = "REQUEST_IN_FLIGHT"
	CodeTimeout              = "TIMEOUT"
	CodeInternal             = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type stockDetails struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeInvalidInput})
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var short *inventory.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: short.Error(), Code: CodeInsufficientStock,
			Details: stockDetails{SKU: short.SKU, Requested: short.Requested, Available: short.Available},
		})
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeInsufficientStock})
	case errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, pricing.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeEntityNotFound})
	case errors.Is(err, inventory.ErrNoActiveReservations):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeNoActiveReservations})
	case errors.Is(err, inventory.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeLockTimeout})
	case errors.Is(err, inventory.ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidRule),
		errors.Is(err, pricing.ErrInvalidPromotion):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidInput})
	case errors.Is(err, redisx.ErrInFlight):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeRequestInFlight})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Code: CodeTimeout})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal})
	}
}
