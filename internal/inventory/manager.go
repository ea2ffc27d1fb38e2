package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/events"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultReservationTTL = 15 * time.Minute

// OrderAssembler turns locked reservation lines into a priced order.
type OrderAssembler interface {
	// Prepare runs before the checkout transaction opens so pricing reads
	// never wait on a connection while row locks are held.
	Prepare(ctx context.Context) (orders.PriceBook, error)
	Assemble(ctx context.Context, book orders.PriceBook, cartID string, lines []orders.Line, at time.Time) (*orders.Order, error)
}

// Manager owns every read-then-write of availability: reserve, release,
// update, checkout and the expiry sweep all run under the variant lock.
type Manager struct {
	store     Store
	assembler OrderAssembler
	pub       events.Publisher
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	ttl       time.Duration
	service   string
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithPublisher(p events.Publisher) Option { return func(m *Manager) { m.pub = p } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

func WithTracer(t trace.Tracer) Option { return func(m *Manager) { m.tracer = t } }

func WithServiceName(name string) Option { return func(m *Manager) { m.service = name } }

// WithDefaultTTL sets the hold duration used when a caller passes ttl 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func NewManager(store Store, assembler OrderAssembler, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		assembler: assembler,
		pub:       events.NopPublisher{},
		log:       zap.NewNop(),
		tracer:    otel.Tracer("inventory"),
		now:       time.Now,
		ttl:       DefaultReservationTTL,
		service:   "inventory-api",
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.pub == nil {
		m.pub = events.NopPublisher{}
	}
	return m
}

// GetAvailableQuantity is an unlocked snapshot: stock minus live holds,
// clamped at zero. Unknown variants report 0.
func (m *Manager) GetAvailableQuantity(ctx context.Context, variantID int64) (int, error) {
	v, err := m.store.Variant(ctx, variantID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	held, err := m.store.HeldQuantity(ctx, variantID, m.now())
	if err != nil {
		return 0, err
	}
	return max(v.StockQuantity-held, 0), nil
}

// Reserve places a PENDING hold of quantity units for cartID. ttl 0 means
// the manager's default.
func (m *Manager) Reserve(ctx context.Context, variantID int64, cartID string, quantity int, ttl time.Duration) (_ *Reservation, err error) {
	if err := validateHold(cartID, quantity, ttl); err != nil {
		return nil, err
	}
	if ttl == 0 {
		ttl = m.ttl
	}

	ctx, span := m.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.Int64("variant.id", variantID),
		attribute.String("cart.id", cartID),
		attribute.Int("quantity", quantity),
	))
	defer func() { endSpan(span, err) }()

	var res Reservation
	err = m.store.WithTx(ctx, func(tx Tx) error {
		v, err := tx.LockVariant(ctx, variantID)
		if err != nil {
			return err
		}
		now := m.now()
		held, err := tx.HeldQuantity(ctx, variantID, now)
		if err != nil {
			return err
		}
		if available := v.StockQuantity - held; quantity > available {
			return &InsufficientStockError{SKU: v.SKU, Requested: quantity, Available: max(available, 0)}
		}
		res = newReservation(variantID, cartID, quantity, now, ttl)
		return tx.InsertReservation(ctx, res)
	})
	if err != nil {
		m.log.Debug("reserve rejected", zap.Int64("variant_id", variantID), zap.String("cart_id", cartID), zap.Error(err))
		return nil, err
	}

	m.log.Info("reservation created",
		zap.String("reservation_id", res.ID), zap.Int64("variant_id", variantID),
		zap.String("cart_id", cartID), zap.Int("quantity", quantity))
	m.publish(ctx, events.TopicReservationCreated, events.EventReservationCreated, cartID, createdPayload(res))
	return &res, nil
}

// Release flips every PENDING hold of cartID on variantID to RELEASED and
// returns how many rows changed. No such hold is reported as ErrNotFound.
func (m *Manager) Release(ctx context.Context, cartID string, variantID int64) (_ int, err error) {
	ctx, span := m.tracer.Start(ctx, "inventory.Release", trace.WithAttributes(
		attribute.Int64("variant.id", variantID),
		attribute.String("cart.id", cartID),
	))
	defer func() { endSpan(span, err) }()

	var released []string
	err = m.store.WithTx(ctx, func(tx Tx) error {
		released = released[:0]
		if _, err := tx.LockVariant(ctx, variantID); err != nil {
			return err
		}
		rows, err := tx.PendingReservations(ctx, cartID, variantID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &EntityNotFoundError{Entity: "Reservation", ID: fmt.Sprintf("cart=%s,variant=%d", cartID, variantID)}
		}
		for _, r := range rows {
			if err := tx.TransitionReservation(ctx, r.ID, StatusPending, StatusReleased); err != nil {
				return err
			}
			released = append(released, r.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.log.Info("reservations released", zap.String("cart_id", cartID), zap.Int64("variant_id", variantID), zap.Int("count", len(released)))
	m.publish(ctx, events.TopicReservationReleased, events.EventReservationReleased, cartID, events.ReservationReleasedPayload{
		CartID: cartID, VariantID: variantID, ReservationIDs: released, Reason: events.ReasonRemoved,
	})
	return len(released), nil
}

// UpdateReservation replaces the cart's holds on variantID with a single
// hold of quantity units. The cart's own live holds count as available;
// when the new quantity does not fit nothing changes.
func (m *Manager) UpdateReservation(ctx context.Context, variantID int64, cartID string, quantity int, ttl time.Duration) (_ *Reservation, err error) {
	if err := validateHold(cartID, quantity, ttl); err != nil {
		return nil, err
	}
	if ttl == 0 {
		ttl = m.ttl
	}

	ctx, span := m.tracer.Start(ctx, "inventory.UpdateReservation", trace.WithAttributes(
		attribute.Int64("variant.id", variantID),
		attribute.String("cart.id", cartID),
		attribute.Int("quantity", quantity),
	))
	defer func() { endSpan(span, err) }()

	var (
		res      Reservation
		replaced []string
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		replaced = replaced[:0]
		v, err := tx.LockVariant(ctx, variantID)
		if err != nil {
			return err
		}
		now := m.now()
		held, err := tx.HeldQuantity(ctx, variantID, now)
		if err != nil {
			return err
		}
		own, err := tx.PendingReservations(ctx, cartID, variantID)
		if err != nil {
			return err
		}
		for _, r := range own {
			if r.Holds(now) {
				held -= r.Quantity
			}
		}
		if available := v.StockQuantity - held; quantity > available {
			return &InsufficientStockError{SKU: v.SKU, Requested: quantity, Available: max(available, 0)}
		}

		for _, r := range own {
			if err := tx.TransitionReservation(ctx, r.ID, StatusPending, StatusReleased); err != nil {
				return err
			}
			replaced = append(replaced, r.ID)
		}
		res = newReservation(variantID, cartID, quantity, now, ttl)
		return tx.InsertReservation(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("reservation updated",
		zap.String("reservation_id", res.ID), zap.Int64("variant_id", variantID),
		zap.String("cart_id", cartID), zap.Int("quantity", quantity), zap.Int("replaced", len(replaced)))
	if len(replaced) > 0 {
		m.publish(ctx, events.TopicReservationReleased, events.EventReservationReleased, cartID, events.ReservationReleasedPayload{
			CartID: cartID, VariantID: variantID, ReservationIDs: replaced, Reason: events.ReasonUpdated,
		})
	}
	m.publish(ctx, events.TopicReservationCreated, events.EventReservationCreated, cartID, createdPayload(res))
	return &res, nil
}

func validateHold(cartID string, quantity int, ttl time.Duration) error {
	switch {
	case cartID == "":
		return fmt.Errorf("%w: cart_id is required", ErrInvalidInput)
	case quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInput, quantity)
	case ttl < 0:
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidInput)
	}
	return nil
}

func newReservation(variantID int64, cartID string, quantity int, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:        uuid.NewString(),
		VariantID: variantID,
		CartID:    cartID,
		Quantity:  quantity,
		ExpiresAt: now.Add(ttl),
		Status:    StatusPending,
		CreatedAt: now,
	}
}

func createdPayload(r Reservation) events.ReservationCreatedPayload {
	return events.ReservationCreatedPayload{
		ReservationID: r.ID,
		VariantID:     r.VariantID,
		CartID:        r.CartID,
		Quantity:      r.Quantity,
		ExpiresAt:     r.ExpiresAt,
	}
}

// publish runs after commit. A failure is logged and swallowed.
func (m *Manager) publish(ctx context.Context, topic, eventType, correlationID string, payload any) {
	env, err := events.New(eventType, m.service, correlationID, payload)
	if err != nil {
		m.log.Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	m.pub.Publish(topic, events.PartitionKey(correlationID), env)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
