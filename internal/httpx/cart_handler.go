package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Inventory is the slice of *inventory.Manager the cart endpoints use.
type Inventory interface {
	GetAvailableQuantity(ctx context.Context, variantID int64) (int, error)
	Reserve(ctx context.Context, variantID int64, cartID string, quantity int, ttl time.Duration) (*inventory.Reservation, error)
	UpdateReservation(ctx context.Context, variantID int64, cartID string, quantity int, ttl time.Duration) (*inventory.Reservation, error)
	Release(ctx context.Context, cartID string, variantID int64) (int, error)
	Checkout(ctx context.Context, cartID string) (*orders.Order, error)
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

type CartHandler struct {
	Inventory Inventory
	Orders    orders.Reader
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency *redisx.CheckoutKeys
	Log         *zap.Logger
	Now         func() time.Time
}

type CartItemReq struct {
	CartID     string `json:"cart_id"`
	VariantID  int64  `json:"variant_id"`
	Quantity   int    `json:"quantity"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type CheckoutReq struct {
	CartID string `json:"cart_id"`
}

type AvailabilityResp struct {
	VariantID int64 `json:"variant_id"`
	Available int   `json:"available"`
}

type ReleaseResp struct {
	Released int `json:"released"`
}

type SweepResp struct {
	Released int       `json:"released"`
	AsOf     time.Time `json:"as_of"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/variants/{id}/availability", h.availability)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items", h.updateItem)
	r.Delete("/cart/items", h.removeItem)
	r.Post("/cart/checkout", h.checkout)
	r.Post("/internal/sweep", h.sweep)
}

func (h *CartHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *CartHandler) availability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "variant id must be an integer")
		return
	}
	n, err := h.Inventory.GetAvailableQuantity(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResp{VariantID: id, Available: n})
}

func (h *CartHandler) decodeItem(w http.ResponseWriter, r *http.Request) (CartItemReq, bool) {
	var req CartItemReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return req, false
	}
	if req.CartID == "" || req.VariantID == 0 {
		badRequest(w, "cart_id and variant_id are required")
		return req, false
	}
	if req.TTLSeconds < 0 {
		badRequest(w, "ttl_seconds must not be negative")
		return req, false
	}
	return req, true
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	res, err := h.Inventory.Reserve(r.Context(), req.VariantID, req.CartID, req.Quantity, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	res, err := h.Inventory.UpdateReservation(r.Context(), req.VariantID, req.CartID, req.Quantity, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	cartID := r.URL.Query().Get("cart_id")
	variantID, err := strconv.ParseInt(r.URL.Query().Get("variant_id"), 10, 64)
	if cartID == "" || err != nil {
		badRequest(w, "cart_id and integer variant_id query parameters are required")
		return
	}
	n, err := h.Inventory.Release(r.Context(), cartID, variantID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseResp{Released: n})
}

func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil || req.CartID == "" {
		badRequest(w, "cart_id is required")
		return
	}
	ctx := r.Context()

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.Idempotency != nil {
		orderID, started, err := h.Idempotency.Begin(ctx, key)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if !started {
			o, err := h.Orders.Order(ctx, orderID)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, o)
			return
		}
	} else {
		key = ""
	}

	o, err := h.Inventory.Checkout(ctx, req.CartID)
	if err != nil {
		if key != "" {
			if aerr := h.Idempotency.Abandon(context.WithoutCancel(ctx), key); aerr != nil {
				h.Log.Warn("release idempotency key", zap.String("key", key), zap.Error(aerr))
			}
		}
		writeError(w, h.Log, err)
		return
	}
	if key != "" {
		if cerr := h.Idempotency.Complete(context.WithoutCancel(ctx), key, o.ID); cerr != nil {
			h.Log.Warn("store idempotency key", zap.String("key", key), zap.Error(cerr))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *CartHandler) sweep(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	n, err := h.Inventory.ExpireSweep(r.Context(), now)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResp{Released: n, AsOf: now})
}
