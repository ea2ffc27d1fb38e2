package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	// Orders is usually a redisx.OrderCache in front of the store.
	Orders orders.Reader
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		badRequest(w, "missing id")
		return
	}
	o, err := h.Orders.Order(r.Context(), orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
