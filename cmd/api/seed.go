package main

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/shopspring/decimal"
)

// seedDemo gives the in-memory backend a small catalog to play with.
func seedDemo(ctx context.Context, s *inventory.MemoryStore) error {
	apparel := int64(1)
	variants := []inventory.Variant{
		{ID: 1, ProductID: 1, SKU: "TS-RED-M", StockQuantity: 10, ProductBasePrice: decimal.NewFromInt(2000), CategoryID: &apparel},
		{ID: 2, ProductID: 1, SKU: "TS-BLU-L", StockQuantity: 5, ProductBasePrice: decimal.NewFromInt(2000),
			PriceAdjustment: decimal.NewFromInt(100), CategoryID: &apparel},
		{ID: 3, ProductID: 2, SKU: "MUG-WHT", StockQuantity: 50, ProductBasePrice: decimal.NewFromInt(350)},
	}
	for _, v := range variants {
		if err := s.PutVariant(v); err != nil {
			return err
		}
	}

	rules := []pricing.Rule{
		{Name: "Bulk 5+", Type: pricing.RuleBulk, Priority: 10, IsActive: true,
			Parameters: map[string]any{pricing.ParamMinQuantity: 5, pricing.ParamDiscountPercentage: 0.1}},
		{Name: "Gold members", Type: pricing.RuleUserTier, Priority: 5, IsActive: true,
			Parameters: map[string]any{pricing.ParamUserTier: "GOLD", pricing.ParamDiscountPercentage: 0.05}},
	}
	for _, r := range rules {
		if _, err := s.CreateRule(ctx, r); err != nil {
			return err
		}
	}

	now := time.Now()
	_, err := s.CreatePromotion(ctx, pricing.Promotion{
		Name: "Apparel week", Description: "10% off apparel", IsActive: true,
		DiscountPercentage: decimal.NewFromFloat(0.1), TargetCategoryID: &apparel,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(7 * 24 * time.Hour),
	})
	return err
}
