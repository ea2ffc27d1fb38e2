package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Engine struct {
	registry Registry
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time used to pick live promotions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(registry Registry, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{registry: registry, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RuleTypes lists the rule types this engine can evaluate.
func (e *Engine) RuleTypes() []RuleType { return e.registry.Types() }

// CalculatePrice applies live promotions, then active rules by descending
// priority. Every discount is taken from the running price, so sources stack
// multiplicatively; the final price never drops below zero.
func (e *Engine) CalculatePrice(
	ctx context.Context,
	basePrice decimal.Decimal,
	pc Context,
	rules []Rule,
	categoryID *int64,
	promos PromotionSource,
) (Result, error) {
	current := basePrice
	applied := make([]BreakdownItem, 0, len(rules))

	if promos != nil {
		now := e.now()
		list, err := promos.ActivePromotions(ctx, categoryID, now)
		if err != nil {
			return Result{}, fmt.Errorf("load promotions: %w", err)
		}
		for _, p := range list {
			if !p.AppliesAt(now, categoryID) {
				continue
			}
			discount := current.Mul(p.DiscountPercentage)
			applied = append(applied, BreakdownItem{
				RuleName:       "Promotion: " + p.Name,
				DiscountAmount: discount,
				Description:    fmt.Sprintf("Applied %s%% campaign discount", percentLabel(p.DiscountPercentage)),
			})
			current = current.Sub(discount)
		}
	}

	for _, r := range orderRules(rules) {
		ev, ok := e.registry.Lookup(r.Type)
		if !ok {
			e.log.Warn("pricing rule skipped: no evaluator for type",
				zap.Int64("rule_id", r.ID),
				zap.String("rule_name", r.Name),
				zap.String("rule_type", string(r.Type)))
			continue
		}
		item, ok := ev.Evaluate(current, pc, r.Parameters)
		if !ok {
			continue
		}
		applied = append(applied, item)
		current = current.Sub(item.DiscountAmount)
	}

	final := current
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Result{BasePrice: basePrice, FinalPrice: final, AppliedRules: applied}, nil
}

// orderRules drops inactive rules and sorts the rest by priority desc, id asc.
func orderRules(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
