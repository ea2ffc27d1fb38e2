package inventory

import "context"

// VariantSales is the quantity of one variant sold through committed orders.
type VariantSales struct {
	VariantID int64  `json:"variant_id"`
	SKU       string `json:"sku"`
	TotalSold int    `json:"total_sold"`
}

// Analytics are unlocked reporting reads over variants and order items.
type Analytics interface {
	// LowStock lists variants whose physical stock is below threshold,
	// lowest stock first.
	LowStock(ctx context.Context, threshold int) ([]Variant, error)
	// TopSelling ranks variants by units sold, at most limit rows.
	TopSelling(ctx context.Context, limit int) ([]VariantSales, error)
}
