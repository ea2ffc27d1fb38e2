package inventory

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-realtime-inventory/internal/events"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Checkout converts the cart's live holds into an order in one transaction:
// variants are locked in ascending id order, each line is priced, stock is
// debited and the holds become COMPLETED. Any failure leaves stock,
// reservations and orders untouched.
func (m *Manager) Checkout(ctx context.Context, cartID string) (_ *orders.Order, err error) {
	ctx, span := m.tracer.Start(ctx, "inventory.Checkout", trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer func() { endSpan(span, err) }()

	candidates, err := m.store.ActiveCartReservations(ctx, cartID, m.now())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoActiveReservations
	}
	variantIDs := distinctVariantIDs(candidates)
	book, err := m.assembler.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	var order *orders.Order
	err = m.store.WithTx(ctx, func(tx Tx) error {
		locked := make(map[int64]Variant, len(variantIDs))
		for _, id := range variantIDs {
			v, err := tx.LockVariant(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = v
		}

		// Re-read under the locks; a concurrent release or sweep may have
		// changed what the candidate read saw.
		now := m.now()
		var (
			holds []Reservation
			lines []orders.Line
		)
		for _, id := range variantIDs {
			rows, err := tx.PendingReservations(ctx, cartID, id)
			if err != nil {
				return err
			}
			v := locked[id]
			for _, r := range rows {
				if !r.Holds(now) {
					continue
				}
				holds = append(holds, r)
				lines = append(lines, orders.Line{
					ReservationID: r.ID,
					VariantID:     id,
					SKU:           v.SKU,
					Quantity:      r.Quantity,
					BasePrice:     v.UnitBasePrice(),
					CategoryID:    v.CategoryID,
				})
			}
		}
		if len(holds) == 0 {
			return ErrNoActiveReservations
		}

		o, err := m.assembler.Assemble(ctx, book, cartID, lines, now)
		if err != nil {
			return err
		}
		for _, r := range holds {
			if err := tx.DebitStock(ctx, r.VariantID, r.Quantity); err != nil {
				return err
			}
			if err := tx.TransitionReservation(ctx, r.ID, StatusPending, StatusCompleted); err != nil {
				return err
			}
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		m.log.Warn("checkout failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil, err
	}

	m.log.Info("order created",
		zap.String("order_id", order.ID), zap.String("cart_id", cartID),
		zap.Int("items", len(order.Items)), zap.String("total", order.TotalAmount.String()))
	m.publish(ctx, events.TopicOrderCreated, events.EventOrderCreated, cartID, orderCreatedPayload(order))
	return order, nil
}

func distinctVariantIDs(rs []Reservation) []int64 {
	seen := make(map[int64]struct{}, len(rs))
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		if _, ok := seen[r.VariantID]; ok {
			continue
		}
		seen[r.VariantID] = struct{}{}
		ids = append(ids, r.VariantID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func orderCreatedPayload(o *orders.Order) events.OrderCreatedPayload {
	items := make([]events.OrderItemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItemPayload{VariantID: it.VariantID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return events.OrderCreatedPayload{OrderID: o.ID, CartID: o.CartID, TotalAmount: o.TotalAmount, Items: items}
}
