package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type Variant struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	SKU              string          `json:"sku"`
	StockQuantity    int             `json:"stock_quantity"` // physical stock, debited only at checkout
	PriceAdjustment  decimal.Decimal `json:"price_adjustment"`
	ProductBasePrice decimal.Decimal `json:"product_base_price"`
	CategoryID       *int64          `json:"category_id,omitempty"`
}

// UnitBasePrice is the undiscounted price the pricing engine starts from.
func (v Variant) UnitBasePrice() decimal.Decimal {
	return v.ProductBasePrice.Add(v.PriceAdjustment)
}

type Reservation struct {
	ID        string            `json:"id"`
	VariantID int64             `json:"variant_id"`
	CartID    string            `json:"cart_id"`
	Quantity  int               `json:"quantity"`
	ExpiresAt time.Time         `json:"expires_at"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Holds reports whether r still counts against availability at now.
func (r Reservation) Holds(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt.After(now)
}
