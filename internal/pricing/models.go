package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleBulk     RuleType = "BULK"
	RuleUserTier RuleType = "USER_TIER"
	RuleSeasonal RuleType = "SEASONAL"
	RuleBOGO     RuleType = "BOGO"
)

// ParseRuleType accepts the persisted rule type names, case-insensitively.
func ParseRuleType(s string) (RuleType, error) {
	switch t := RuleType(strings.ToUpper(strings.TrimSpace(s))); t {
	case RuleBulk, RuleUserTier, RuleSeasonal, RuleBOGO:
		return t, nil
	default:
		return "", fmt.Errorf("unknown rule type %q", s)
	}
}

type Rule struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Type       RuleType       `json:"type"`
	Priority   int            `json:"priority"`
	Parameters map[string]any `json:"parameters"`
	IsActive   bool           `json:"is_active"`
}

type Promotion struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	TargetCategoryID   *int64          `json:"target_category_id,omitempty"` // nil = site-wide
	IsActive           bool            `json:"is_active"`
}

// AppliesAt reports whether the promotion is live at now for a product in categoryID.
// The window is inclusive on both ends.
func (p Promotion) AppliesAt(now time.Time, categoryID *int64) bool {
	if !p.IsActive || now.Before(p.StartDate) || now.After(p.EndDate) {
		return false
	}
	if p.TargetCategoryID == nil {
		return true
	}
	return categoryID != nil && *categoryID == *p.TargetCategoryID
}

// Context carries the per-line facts evaluators may inspect.
type Context struct {
	Quantity  int    `json:"quantity"`
	UserTier  string `json:"user_tier,omitempty"`
	PromoCode string `json:"promo_code,omitempty"`
}

type BreakdownItem struct {
	RuleName       string          `json:"rule_name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Description    string          `json:"description"`
}

type Result struct {
	BasePrice    decimal.Decimal `json:"base_price"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	AppliedRules []BreakdownItem `json:"applied_rules"`
}

type RuleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

type PromotionSource interface {
	// ActivePromotions returns candidate promotions for categoryID at now, ordered by id.
	ActivePromotions(ctx context.Context, categoryID *int64, now time.Time) ([]Promotion, error)
}

// PromotionCatalog lists every stored promotion, live or not, ordered by id.
type PromotionCatalog interface {
	Promotions(ctx context.Context) ([]Promotion, error)
}

// PromotionSet is a PromotionSource over an already loaded list. It does no
// I/O, so it is safe to consult while a store transaction is open.
type PromotionSet []Promotion

func (s PromotionSet) ActivePromotions(_ context.Context, categoryID *int64, now time.Time) ([]Promotion, error) {
	var out []Promotion
	for _, p := range s {
		if p.AppliesAt(now, categoryID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
