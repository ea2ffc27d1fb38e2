package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Evaluator computes one rule's discount against the running price.
// ok=false means the rule does not apply to this line.
type Evaluator interface {
	Evaluate(current decimal.Decimal, pc Context, params map[string]any) (item BreakdownItem, ok bool)
}

type BulkDiscount struct{}

func (BulkDiscount) Evaluate(current decimal.Decimal, pc Context, params map[string]any) (BreakdownItem, bool) {
	minQty, _, _ := paramInt(params, ParamMinQuantity)
	pct, _, _ := paramDecimal(params, ParamDiscountPercentage)
	if pc.Quantity < minQty {
		return BreakdownItem{}, false
	}
	return BreakdownItem{
		RuleName:       "Bulk Discount",
		DiscountAmount: current.Mul(pct),
		Description:    fmt.Sprintf("Applied %s%% discount for %d+ units", percentLabel(pct), minQty),
	}, true
}

type UserTierDiscount struct{}

func (UserTierDiscount) Evaluate(current decimal.Decimal, pc Context, params map[string]any) (BreakdownItem, bool) {
	tier, _, _ := paramString(params, ParamUserTier)
	pct, _, _ := paramDecimal(params, ParamDiscountPercentage)
	if pc.UserTier != tier {
		return BreakdownItem{}, false
	}
	return BreakdownItem{
		RuleName:       tier + " Tier Discount",
		DiscountAmount: current.Mul(pct),
		Description:    fmt.Sprintf("Applied %s%% special discount for %s members", percentLabel(pct), tier),
	}, true
}

type SeasonalDiscount struct{}

func (SeasonalDiscount) Evaluate(current decimal.Decimal, _ Context, params map[string]any) (BreakdownItem, bool) {
	pct, _, _ := paramDecimal(params, ParamDiscountPercentage)
	return BreakdownItem{
		RuleName:       "Seasonal Sale",
		DiscountAmount: current.Mul(pct),
		Description:    fmt.Sprintf("Applied %s%% seasonal discount", percentLabel(pct)),
	}, true
}

// BuyOneGetOne halves the unit price once two or more units are bought, an
// average-per-unit approximation of "every second unit free".
type BuyOneGetOne struct{}

func (BuyOneGetOne) Evaluate(current decimal.Decimal, pc Context, _ map[string]any) (BreakdownItem, bool) {
	if pc.Quantity < 2 {
		return BreakdownItem{}, false
	}
	return BreakdownItem{
		RuleName:       "BOGO",
		DiscountAmount: current.Div(decimal.NewFromInt(2)),
		Description:    "Buy One Get One Free applied",
	}, true
}
