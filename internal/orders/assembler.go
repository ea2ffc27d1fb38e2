package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Pricer interface {
	CalculatePrice(ctx context.Context, basePrice decimal.Decimal, pc pricing.Context,
		rules []pricing.Rule, categoryID *int64, promos pricing.PromotionSource) (pricing.Result, error)
}

// Assembler prices locked reservation lines and builds the order snapshot.
// It never touches stock; the caller debits inside the same transaction.
type Assembler struct {
	pricer     Pricer
	rules      pricing.RuleSource
	promotions pricing.PromotionCatalog
}

func NewAssembler(pricer Pricer, rules pricing.RuleSource, promotions pricing.PromotionCatalog) *Assembler {
	return &Assembler{pricer: pricer, rules: rules, promotions: promotions}
}

// PriceBook is everything a checkout prices against. It is loaded by Prepare
// before the checkout transaction opens; Assemble only reads it.
type PriceBook struct {
	Rules      []pricing.Rule
	Promotions pricing.PromotionSet
}

func (a *Assembler) Prepare(ctx context.Context) (PriceBook, error) {
	rules, err := a.rules.ActiveRules(ctx)
	if err != nil {
		return PriceBook{}, fmt.Errorf("load pricing rules: %w", err)
	}
	promos, err := a.promotions.Promotions(ctx)
	if err != nil {
		return PriceBook{}, fmt.Errorf("load promotions: %w", err)
	}
	return PriceBook{Rules: rules, Promotions: pricing.PromotionSet(promos)}, nil
}

// Assemble does no I/O of its own: rules and promotions come from book.
func (a *Assembler) Assemble(ctx context.Context, book PriceBook, cartID string, lines []Line, at time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("assemble order for cart %s: no lines", cartID)
	}

	order := &Order{
		ID:          uuid.NewString(),
		CartID:      cartID,
		TotalAmount: decimal.Zero,
		CreatedAt:   at,
		Items:       make([]Item, 0, len(lines)),
	}
	for _, ln := range lines {
		res, err := a.pricer.CalculatePrice(ctx, ln.BasePrice, pricing.Context{Quantity: ln.Quantity},
			book.Rules, ln.CategoryID, book.Promotions)
		if err != nil {
			return nil, fmt.Errorf("price variant %d: %w", ln.VariantID, err)
		}
		order.Items = append(order.Items, Item{
			ReservationID: ln.ReservationID,
			VariantID:     ln.VariantID,
			SKU:           ln.SKU,
			Quantity:      ln.Quantity,
			UnitPrice:     res.FinalPrice,
		})
		order.TotalAmount = order.TotalAmount.Add(res.FinalPrice.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}
	return order, nil
}
