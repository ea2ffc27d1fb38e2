package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRule      = errors.New("invalid pricing rule")
	ErrInvalidPromotion = errors.New("invalid promotion")
	// ErrNotFound is returned when deleting an unknown rule or promotion.
	ErrNotFound = errors.New("pricing entity not found")
)

// Validate is the gate for rules entering storage. Evaluators themselves fall
// back to zero values, so malformed parameters must be rejected here.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if _, err := ParseRuleType(string(r.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	switch r.Type {
	case RuleBulk:
		n, ok, err := paramInt(r.Parameters, ParamMinQuantity)
		if err != nil || !ok || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidRule, ParamMinQuantity)
		}
		return validatePercentage(r.Parameters)
	case RuleUserTier:
		tier, ok, err := paramString(r.Parameters, ParamUserTier)
		if err != nil || !ok || tier == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidRule, ParamUserTier)
		}
		return validatePercentage(r.Parameters)
	case RuleSeasonal:
		return validatePercentage(r.Parameters)
	}
	return nil
}

func validatePercentage(params map[string]any) error {
	pct, ok, err := paramDecimal(params, ParamDiscountPercentage)
	if err != nil || !ok {
		return fmt.Errorf("%w: %s is required", ErrInvalidRule, ParamDiscountPercentage)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s must be within [0,1]", ErrInvalidRule, ParamDiscountPercentage)
	}
	return nil
}

func (p Promotion) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPromotion)
	}
	if p.DiscountPercentage.IsNegative() || p.DiscountPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: discount_percentage must be within [0,1]", ErrInvalidPromotion)
	}
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: end_date precedes start_date", ErrInvalidPromotion)
	}
	return nil
}
