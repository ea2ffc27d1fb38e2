package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Pricer interface {
	CalculatePrice(ctx context.Context, basePrice decimal.Decimal, pc pricing.Context,
		rules []pricing.Rule, categoryID *int64, promos pricing.PromotionSource) (pricing.Result, error)
	RuleTypes() []pricing.RuleType
}

type RuleStore interface {
	pricing.RuleSource
	Rules(ctx context.Context) ([]pricing.Rule, error)
	CreateRule(ctx context.Context, r pricing.Rule) (pricing.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
}

type PromotionStore interface {
	pricing.PromotionSource
	pricing.PromotionCatalog
	CreatePromotion(ctx context.Context, p pricing.Promotion) (pricing.Promotion, error)
	DeletePromotion(ctx context.Context, id int64) error
}

type VariantReader interface {
	Variant(ctx context.Context, id int64) (inventory.Variant, error)
}

type PricingHandler struct {
	Pricer     Pricer
	Rules      RuleStore
	Promotions PromotionStore
	Variants   VariantReader
	Log        *zap.Logger
}

type QuoteReq struct {
	VariantID int64  `json:"variant_id"`
	Quantity  *int   `json:"quantity,omitempty"` // 1 when omitted
	UserTier  string `json:"user_tier,omitempty"`
	PromoCode string `json:"promo_code,omitempty"`
}

type QuoteResp struct {
	VariantID int64  `json:"variant_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	pricing.Result
}

type CreateRuleReq struct {
	Name       string         `json:"name"`
	RuleType   string         `json:"rule_type"`
	Priority   int            `json:"priority"`
	Parameters map[string]any `json:"parameters"`
	IsActive   *bool          `json:"is_active,omitempty"`
}

type CreatePromotionReq struct {
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	TargetCategoryID   *int64          `json:"target_category_id,omitempty"`
	IsActive           *bool           `json:"is_active,omitempty"`
}

type RuleTypesResp struct {
	RuleTypes []pricing.RuleType `json:"rule_types"`
}

func (h *PricingHandler) Register(r chi.Router) {
	r.Post("/pricing/quote", h.quote)
	r.Get("/pricing/rule-types", h.ruleTypes)

	r.Get("/pricing/rules", h.listRules)
	r.Post("/pricing/rules", h.createRule)
	r.Delete("/pricing/rules/{id}", h.deleteRule)

	r.Get("/pricing/promotions", h.listPromotions)
	r.Post("/pricing/promotions", h.createPromotion)
	r.Delete("/pricing/promotions/{id}", h.deletePromotion)
}

func (h *PricingHandler) quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.VariantID == 0 {
		badRequest(w, "variant_id is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		badRequest(w, "quantity must be positive")
		return
	}
	ctx := r.Context()

	v, err := h.Variants.Variant(ctx, req.VariantID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	rules, err := h.Rules.ActiveRules(ctx)
	if err != nil {
		writeError(w, h.Log, fmt.Errorf("load pricing rules: %w", err))
		return
	}
	res, err := h.Pricer.CalculatePrice(ctx, v.UnitBasePrice(),
		pricing.Context{Quantity: qty, UserTier: req.UserTier, PromoCode: req.PromoCode},
		rules, v.CategoryID, h.Promotions)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResp{VariantID: v.ID, SKU: v.SKU, Quantity: qty, Result: res})
}

func (h *PricingHandler) ruleTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RuleTypesResp{RuleTypes: h.Pricer.RuleTypes()})
}

func (h *PricingHandler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.Rules(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if rules == nil {
		rules = []pricing.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *PricingHandler) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	typ, err := pricing.ParseRuleType(req.RuleType)
	if err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: %v", pricing.ErrInvalidRule, err))
		return
	}
	rule := pricing.Rule{
		Name:       req.Name,
		Type:       typ,
		Priority:   req.Priority,
		Parameters: req.Parameters,
		IsActive:   req.IsActive == nil || *req.IsActive,
	}
	created, err := h.Rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *PricingHandler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Rules.DeleteRule(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PricingHandler) listPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Promotions.Promotions(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if promos == nil {
		promos = []pricing.Promotion{}
	}
	writeJSON(w, http.StatusOK, promos)
}

func (h *PricingHandler) createPromotion(w http.ResponseWriter, r *http.Request) {
	var req CreatePromotionReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	created, err := h.Promotions.CreatePromotion(r.Context(), pricing.Promotion{
		Name:               req.Name,
		Description:        req.Description,
		DiscountPercentage: req.DiscountPercentage,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		TargetCategoryID:   req.TargetCategoryID,
		IsActive:           req.IsActive == nil || *req.IsActive,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *PricingHandler) deletePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Promotions.DeletePromotion(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
