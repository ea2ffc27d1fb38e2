package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/jackc/pgx/v5"
)

func (s *Store) LowStock(ctx context.Context, threshold int) ([]inventory.Variant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+variantColumns+`
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.stock_quantity < $1
		ORDER BY v.stock_quantity, v.id`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Variant, error) {
		var v inventory.Variant
		err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.StockQuantity, &v.PriceAdjustment, &v.ProductBasePrice, &v.CategoryID)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan low stock: %w", err)
	}
	return out, nil
}

func (s *Store) TopSelling(ctx context.Context, limit int) ([]inventory.VariantSales, error) {
	rows, err := s.pool.Query(ctx, `SELECT v.id, v.sku, SUM(oi.quantity)::bigint AS total_sold
		FROM order_items oi JOIN product_variants v ON v.id = oi.variant_id
		GROUP BY v.id, v.sku
		ORDER BY total_sold DESC, v.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top selling: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.VariantSales, error) {
		var (
			vs   inventory.VariantSales
			sold int64
		)
		err := row.Scan(&vs.VariantID, &vs.SKU, &sold)
		vs.TotalSold = int(sold)
		return vs, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan top selling: %w", err)
	}
	return out, nil
}
