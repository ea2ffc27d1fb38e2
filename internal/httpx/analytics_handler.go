package httpx

import (
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultLowStockThreshold = 5
	defaultTopSellingLimit   = 10
)

type AnalyticsHandler struct {
	Analytics inventory.Analytics
	Log       *zap.Logger
}

func (h *AnalyticsHandler) Register(r chi.Router) {
	r.Get("/analytics/low-stock", h.lowStock)
	r.Get("/analytics/top-selling", h.topSelling)
}

func (h *AnalyticsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, ok := queryInt(w, r, "threshold", defaultLowStockThreshold, 0)
	if !ok {
		return
	}
	out, err := h.Analytics.LowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if out == nil {
		out = []inventory.Variant{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AnalyticsHandler) topSelling(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultTopSellingLimit, 1)
	if !ok {
		return
	}
	out, err := h.Analytics.TopSelling(r.Context(), limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if out == nil {
		out = []inventory.VariantSales{}
	}
	writeJSON(w, http.StatusOK, out)
}

// queryInt reads an optional integer query parameter no smaller than floor.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, floor int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < floor {
		badRequest(w, name+" must be an integer >= "+strconv.Itoa(floor))
		return 0, false
	}
	return n, true
}
