package orders

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is written once at checkout and never recomputed.
type Order struct {
	ID          string          `json:"id"`
	CartID      string          `json:"cart_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []Item          `json:"items"`
}

type Item struct {
	ReservationID string          `json:"reservation_id"`
	VariantID     int64           `json:"variant_id"`
	SKU           string          `json:"sku"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"` // snapshot at purchase time
}

// Line is one locked reservation handed over for pricing.
type Line struct {
	ReservationID string
	VariantID     int64
	SKU           string
	Quantity      int
	BasePrice     decimal.Decimal
	CategoryID    *int64
}

type Reader interface {
	Order(ctx context.Context, id string) (*Order, error)
}
