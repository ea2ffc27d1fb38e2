package pricing

import "sort"

// Registry maps rule types to evaluators. It is read-only once built, so a
// single value can be shared by every request goroutine.
type Registry struct {
	evaluators map[RuleType]Evaluator
}

func NewRegistry(evaluators map[RuleType]Evaluator) Registry {
	m := make(map[RuleType]Evaluator, len(evaluators))
	for t, ev := range evaluators {
		m[t] = ev
	}
	return Registry{evaluators: m}
}

func DefaultRegistry() Registry {
	return NewRegistry(map[RuleType]Evaluator{
		RuleBulk:     BulkDiscount{},
		RuleUserTier: UserTierDiscount{},
		RuleSeasonal: SeasonalDiscount{},
		RuleBOGO:     BuyOneGetOne{},
	})
}

func (r Registry) Lookup(t RuleType) (Evaluator, bool) {
	ev, ok := r.evaluators[t]
	return ev, ok
}

func (r Registry) Types() []RuleType {
	out := make([]RuleType, 0, len(r.evaluators))
	for t := range r.evaluators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
