package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var at = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type staticRules []pricing.Rule

func (r staticRules) ActiveRules(context.Context) ([]pricing.Rule, error) { return r, nil }

type staticPromos []pricing.Promotion

func (p staticPromos) Promotions(context.Context) ([]pricing.Promotion, error) { return p, nil }

type brokenRules struct{}

func (brokenRules) ActiveRules(context.Context) ([]pricing.Rule, error) {
	return nil, errors.New("connection reset")
}

type brokenPromos struct{}

func (brokenPromos) Promotions(context.Context) ([]pricing.Promotion, error) {
	return nil, errors.New("connection reset")
}

func newTestAssembler(rules pricing.RuleSource, promos pricing.PromotionCatalog) *Assembler {
	engine := pricing.NewEngine(pricing.DefaultRegistry(), zap.NewNop(), pricing.WithClock(func() time.Time { return at }))
	return NewAssembler(engine, rules, promos)
}

func TestAssemble_PricesEachLineAndSnapshotsUnitPrice(t *testing.T) {
	cat := int64(4)
	rules := staticRules{{
		ID: 1, Name: "bulk", Type: pricing.RuleBulk, Priority: 1, IsActive: true,
		Parameters: map[string]any{pricing.ParamMinQuantity: 3, pricing.ParamDiscountPercentage: 0.5},
	}}
	promos := staticPromos{{
		ID: 1, Name: "Spring", IsActive: true, TargetCategoryID: &cat,
		DiscountPercentage: decimal.NewFromFloat(0.1),
		StartDate:          at.Add(-time.Hour), EndDate: at.Add(time.Hour),
	}}
	a := newTestAssembler(rules, promos)
	book, err := a.Prepare(context.Background())
	require.NoError(t, err)

	o, err := a.Assemble(context.Background(), book, "cart-9", []Line{
		{ReservationID: "r1", VariantID: 1, SKU: "MUG", Quantity: 3, BasePrice: decimal.NewFromInt(10)},
		{ReservationID: "r2", VariantID: 2, SKU: "TEE", Quantity: 1, BasePrice: decimal.NewFromInt(100), CategoryID: &cat},
	}, at)
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "cart-9", o.CartID)
	assert.Equal(t, at, o.CreatedAt)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "5", o.Items[0].UnitPrice.String())
	assert.Equal(t, "90", o.Items[1].UnitPrice.String())
	assert.Equal(t, "r2", o.Items[1].ReservationID)
	assert.Equal(t, "105", o.TotalAmount.String())
}

func TestAssemble_Errors(t *testing.T) {
	a := newTestAssembler(staticRules{}, staticPromos{})
	_, err := a.Assemble(context.Background(), PriceBook{}, "cart", nil, at)
	assert.Error(t, err)

	_, err = newTestAssembler(brokenRules{}, staticPromos{}).Prepare(context.Background())
	assert.ErrorContains(t, err, "load pricing rules")

	_, err = newTestAssembler(staticRules{}, brokenPromos{}).Prepare(context.Background())
	assert.ErrorContains(t, err, "load promotions")
}

// Assemble must price from the book alone; the sources behind the assembler
// are not consulted again once Prepare has run.
func TestAssemble_UsesPreparedBookOnly(t *testing.T) {
	a := newTestAssembler(brokenRules{}, brokenPromos{})
	book := PriceBook{
		Rules: []pricing.Rule{{
			ID: 1, Name: "bulk", Type: pricing.RuleBulk, Priority: 1, IsActive: true,
			Parameters: map[string]any{pricing.ParamMinQuantity: 2, pricing.ParamDiscountPercentage: 0.1},
		}},
		Promotions: pricing.PromotionSet{{
			ID: 7, Name: "Site", IsActive: true, DiscountPercentage: decimal.NewFromFloat(0.1),
			StartDate: at.Add(-time.Hour), EndDate: at.Add(time.Hour),
		}},
	}

	o, err := a.Assemble(context.Background(), book, "cart", []Line{
		{ReservationID: "r1", VariantID: 1, SKU: "MUG", Quantity: 2, BasePrice: decimal.NewFromInt(2000)},
	}, at)
	require.NoError(t, err)
	assert.Equal(t, "1620", o.Items[0].UnitPrice.String())
	assert.Equal(t, "3240", o.TotalAmount.String())
}
