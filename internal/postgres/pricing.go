package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, name, rule_type, priority, parameters, is_active`

const promotionColumns = `id, name, description, discount_percentage, start_date, end_date, target_category_id, is_active`

func (s *Store) ActiveRules(ctx context.Context) ([]pricing.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE is_active ORDER BY priority DESC, id`)
}

// Rules lists every rule, active or not.
func (s *Store) Rules(ctx context.Context) ([]pricing.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM pricing_rules ORDER BY id`)
}

func (s *Store) queryRules(ctx context.Context, sql string) ([]pricing.Rule, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query pricing rules: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Rule, error) {
		var (
			r   pricing.Rule
			typ string
		)
		err := row.Scan(&r.ID, &r.Name, &typ, &r.Priority, &r.Parameters, &r.IsActive)
		r.Type = pricing.RuleType(typ)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pricing rules: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pricing rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", id, pricing.ErrNotFound)
	}
	return nil
}

// CreateRule validates r and stores it; the CHECK on rule_type mirrors
// pricing.ParseRuleType.
func (s *Store) CreateRule(ctx context.Context, r pricing.Rule) (pricing.Rule, error) {
	if err := r.Validate(); err != nil {
		return pricing.Rule{}, err
	}
	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO pricing_rules (name, rule_type, priority, parameters, is_active)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		r.Name, string(r.Type), r.Priority, params, r.IsActive).Scan(&r.ID)
	if err != nil {
		return pricing.Rule{}, fmt.Errorf("insert pricing rule: %w", err)
	}
	return r, nil
}

// ActivePromotions uses the same window and targeting as
// pricing.Promotion.AppliesAt. A nil categoryID matches site-wide
// promotions only.
func (s *Store) ActivePromotions(ctx context.Context, categoryID *int64, now time.Time) ([]pricing.Promotion, error) {
	return s.queryPromotions(ctx, `SELECT `+promotionColumns+` FROM promotions
		WHERE is_active AND start_date <= $1 AND end_date >= $1
		  AND (target_category_id IS NULL OR target_category_id = $2)
		ORDER BY id`, now, categoryID)
}

// Promotions lists every promotion, live or not. Checkout loads this once
// before its transaction and filters in memory.
func (s *Store) Promotions(ctx context.Context) ([]pricing.Promotion, error) {
	return s.queryPromotions(ctx, `SELECT `+promotionColumns+` FROM promotions ORDER BY id`)
}

func (s *Store) queryPromotions(ctx context.Context, sql string, args ...any) ([]pricing.Promotion, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Promotion, error) {
		var p pricing.Promotion
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DiscountPercentage, &p.StartDate, &p.EndDate,
			&p.TargetCategoryID, &p.IsActive)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan promotions: %w", err)
	}
	return out, nil
}

func (s *Store) DeletePromotion(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("promotion %d: %w", id, pricing.ErrNotFound)
	}
	return nil
}

func (s *Store) CreatePromotion(ctx context.Context, p pricing.Promotion) (pricing.Promotion, error) {
	if err := p.Validate(); err != nil {
		return pricing.Promotion{}, err
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO promotions
			(name, description, discount_percentage, start_date, end_date, target_category_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Name, p.Description, p.DiscountPercentage, p.StartDate, p.EndDate, p.TargetCategoryID, p.IsActive).Scan(&p.ID)
	if err != nil {
		return pricing.Promotion{}, fmt.Errorf("insert promotion: %w", err)
	}
	return p, nil
}

func (s *Store) Order(ctx context.Context, id string) (*orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", id, orders.ErrOrderNotFound)
	}
	o := &orders.Order{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT cart_id, total_amount, created_at FROM orders WHERE id = $1`, id).
		Scan(&o.CartID, &o.TotalAmount, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, orders.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `SELECT COALESCE(reservation_id::text, ''), variant_id, sku, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Item, error) {
		var it orders.Item
		err := row.Scan(&it.ReservationID, &it.VariantID, &it.SKU, &it.Quantity, &it.UnitPrice)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan order items: %w", err)
	}
	return o, nil
}
