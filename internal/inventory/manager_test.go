package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/events"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type published struct {
	topic string
	env   events.Envelope
}

type capturePublisher struct {
	mu  sync.Mutex
	out []published
}

func (p *capturePublisher) Publish(topic string, _ []byte, ev events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, published{topic: topic, env: ev})
}

func (p *capturePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.out))
	for _, e := range p.out {
		out = append(out, e.topic)
	}
	return out
}

type fixture struct {
	m     *Manager
	store *MemoryStore
	clock *fakeClock
	pub   *capturePublisher
}

const (
	shirtRed  int64 = 1 // stock 10, base 2000
	shirtBlue int64 = 2 // stock 5, base 2000 + 100
)

func newFixture(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(lockTimeout)
	apparel := int64(3)
	require.NoError(t, store.PutVariant(Variant{
		ID: shirtRed, ProductID: 10, SKU: "TS-RED-M", StockQuantity: 10,
		ProductBasePrice: decimal.NewFromInt(2000), CategoryID: &apparel,
	}))
	require.NoError(t, store.PutVariant(Variant{
		ID: shirtBlue, ProductID: 10, SKU: "TS-BLU-L", StockQuantity: 5,
		ProductBasePrice: decimal.NewFromInt(2000), PriceAdjustment: decimal.NewFromInt(100), CategoryID: &apparel,
	}))

	engine := pricing.NewEngine(pricing.DefaultRegistry(), zap.NewNop(), pricing.WithClock(clock.Now))
	pub := &capturePublisher{}
	m := NewManager(store, orders.NewAssembler(engine, store, store),
		WithClock(clock.Now), WithPublisher(pub), WithServiceName("test"))
	return &fixture{m: m, store: store, clock: clock, pub: pub}
}

func (f *fixture) available(t *testing.T, id int64) int {
	t.Helper()
	n, err := f.m.GetAvailableQuantity(context.Background(), id)
	require.NoError(t, err)
	return n
}

func TestReserve_TwoConcurrentSixOfTen(t *testing.T) {
	f := newFixture(t, 2*time.Second)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, cart := range []string{"cart-a", "cart-b"} {
		wg.Add(1)
		go func(i int, cart string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.m.Reserve(ctx, shirtRed, cart, 6, 0)
		}(i, cart)
	}
	close(start)
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 4, f.available(t, shirtRed))
}

func TestReserve_NeverOversellsUnderContention(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	ctx := context.Background()

	const shoppers = 60
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qty := i%3 + 1
			_, err := f.m.Reserve(ctx, shirtRed, "cart", qty, time.Minute)
			if err == nil {
				mu.Lock()
				reserved += qty
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, reserved, 10)
	assert.Equal(t, 10-reserved, f.available(t, shirtRed))
}

func TestReserve_Validation(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.m.Reserve(ctx, shirtRed, "cart", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.m.Reserve(ctx, shirtRed, "", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.m.Reserve(ctx, shirtRed, "cart", 1, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.m.Reserve(ctx, 404, "cart", 1, 0)
	require.ErrorIs(t, err, ErrNotFound)
	var nf *EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Variant", nf.Entity)
	assert.Equal(t, "Variant with id 404 not found", err.Error())
}

func TestReserve_InsufficientStockDetails(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.m.Reserve(ctx, shirtRed, "cart-a", 3, 0)
	require.NoError(t, err)
	_, err = f.m.Reserve(ctx, shirtRed, "cart-b", 8, 0)

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "TS-RED-M", short.SKU)
	assert.Equal(t, 8, short.Requested)
	assert.Equal(t, 7, short.Available)
	assert.Equal(t, "Insufficient stock for TS-RED-M. Requested: 8, Available: 7", err.Error())
}

func TestReserve_DefaultTTLAndEvent(t *testing.T) {
	f := newFixture(t, time.Second)

	res, err := f.m.Reserve(context.Background(), shirtRed, "cart", 2, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, f.clock.Now().Add(DefaultReservationTTL), res.ExpiresAt)
	assert.Equal(t, []string{events.TopicReservationCreated}, f.pub.topics())

	payload, err := events.Decode[events.ReservationCreatedPayload](f.pub.out[0].env)
	require.NoError(t, err)
	assert.Equal(t, res.ID, payload.ReservationID)
	assert.Equal(t, "cart", f.pub.out[0].env.CorrelationID)
	assert.Equal(t, "test", f.pub.out[0].env.Producer)
}

func TestGetAvailableQuantity_UnknownVariantIsZero(t *testing.T) {
	f := newFixture(t, time.Second)
	assert.Equal(t, 0, f.available(t, 999))
	assert.Equal(t, 10, f.available(t, shirtRed))
}

func TestExpiry_RestoresCapacityAndSweepReleases(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	res, err := f.m.Reserve(ctx, shirtRed, "cart", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, shirtRed))

	_, err = f.m.Reserve(ctx, shirtRed, "other", 1, 0)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// expiry at exactly now no longer holds stock
	f.clock.Advance(time.Minute)
	assert.Equal(t, 10, f.available(t, shirtRed))

	n, err := f.m.ExpireSweep(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := f.store.Reservation(res.ID)
	require.True(t, ok)
	assert.Equal(t, StatusReleased, got.Status)

	n, err = f.m.ExpireSweep(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, f.pub.topics(), events.TopicReservationsExpired)
}

func TestExpireSweep_LeavesLiveHoldsAlone(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.m.Reserve(ctx, shirtRed, "short", 2, time.Minute)
	require.NoError(t, err)
	live, err := f.m.Reserve(ctx, shirtBlue, "long", 1, time.Hour)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	n, err := f.m.ExpireSweep(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.store.Reservation(live.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 4, f.available(t, shirtBlue))
}

func TestRelease(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.m.Reserve(ctx, shirtRed, "cart", 2, 0)
	require.NoError(t, err)
	_, err = f.m.Reserve(ctx, shirtRed, "cart", 3, 0)
	require.NoError(t, err)
	_, err = f.m.Reserve(ctx, shirtRed, "someone-else", 1, 0)
	require.NoError(t, err)

	n, err := f.m.Release(ctx, "cart", shirtRed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 9, f.available(t, shirtRed))

	_, err = f.m.Release(ctx, "cart", shirtRed)
	require.ErrorIs(t, err, ErrNotFound)
	var nf *EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Reservation", nf.Entity)
}

func TestUpdateReservation_IsAllOrNothing(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	first, err := f.m.Reserve(ctx, shirtRed, "cart-a", 6, 0)
	require.NoError(t, err)
	_, err = f.m.Reserve(ctx, shirtRed, "cart-b", 3, 0)
	require.NoError(t, err)

	// own 6 counts as available: 10 - 3 = 7
	updated, err := f.m.UpdateReservation(ctx, shirtRed, "cart-a", 7, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
	old, _ := f.store.Reservation(first.ID)
	assert.Equal(t, StatusReleased, old.Status)
	assert.Equal(t, 0, f.available(t, shirtRed))

	_, err = f.m.UpdateReservation(ctx, shirtRed, "cart-a", 8, 0)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 7, short.Available)

	// the failed update changed nothing
	kept, _ := f.store.Reservation(updated.ID)
	assert.Equal(t, StatusPending, kept.Status)
	assert.Equal(t, 0, f.available(t, shirtRed))
}

func TestUpdateReservation_WithoutExistingHoldActsAsReserve(t *testing.T) {
	f := newFixture(t, time.Second)

	res, err := f.m.UpdateReservation(context.Background(), shirtBlue, "cart", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Quantity)
	assert.Equal(t, 0, f.available(t, shirtBlue))
	assert.Equal(t, []string{events.TopicReservationCreated}, f.pub.topics())
}

func TestCheckout_TwoVariants(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, pricing.Rule{
		Name: "bulk", Type: pricing.RuleBulk, Priority: 1, IsActive: true,
		Parameters: map[string]any{pricing.ParamMinQuantity: 2, pricing.ParamDiscountPercentage: 0.1},
	})
	require.NoError(t, err)

	red, err := f.m.Reserve(ctx, shirtRed, "cart", 2, 0)
	require.NoError(t, err)
	blue, err := f.m.Reserve(ctx, shirtBlue, "cart", 1, 0)
	require.NoError(t, err)

	order, err := f.m.Checkout(ctx, "cart")
	require.NoError(t, err)

	require.Len(t, order.Items, 2)
	assert.Equal(t, shirtRed, order.Items[0].VariantID)
	assert.Equal(t, "1800", order.Items[0].UnitPrice.String())
	assert.Equal(t, "2100", order.Items[1].UnitPrice.String())
	assert.Equal(t, "5700", order.TotalAmount.String())

	for _, id := range []string{red.ID, blue.ID} {
		r, _ := f.store.Reservation(id)
		assert.Equal(t, StatusCompleted, r.Status)
	}
	v1, _ := f.store.Variant(ctx, shirtRed)
	v2, _ := f.store.Variant(ctx, shirtBlue)
	assert.Equal(t, 8, v1.StockQuantity)
	assert.Equal(t, 4, v2.StockQuantity)
	assert.Equal(t, 8, f.available(t, shirtRed))

	stored, err := f.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(order.TotalAmount))
	assert.Contains(t, f.pub.topics(), events.TopicOrderCreated)

	_, err = f.m.Checkout(ctx, "cart")
	assert.ErrorIs(t, err, ErrNoActiveReservations)
}

func TestCheckout_NoLiveHolds(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.m.Checkout(ctx, "empty")
	assert.ErrorIs(t, err, ErrNoActiveReservations)

	_, err = f.m.Reserve(ctx, shirtRed, "stale", 1, time.Minute)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.m.Checkout(ctx, "stale")
	assert.ErrorIs(t, err, ErrNoActiveReservations)
}

// failingOrderStore lets everything through except the final order write.
type failingOrderStore struct{ *MemoryStore }

func (s failingOrderStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx Tx) error { return fn(failingOrderTx{tx}) })
}

type failingOrderTx struct{ Tx }

func (failingOrderTx) InsertOrder(context.Context, *orders.Order) error {
	return errors.New("disk full")
}

func TestCheckout_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	m := NewManager(failingOrderStore{f.store},
		orders.NewAssembler(pricing.NewEngine(pricing.DefaultRegistry(), nil), f.store, f.store),
		WithClock(f.clock.Now), WithPublisher(f.pub))

	red, err := m.Reserve(ctx, shirtRed, "cart", 4, 0)
	require.NoError(t, err)
	blue, err := m.Reserve(ctx, shirtBlue, "cart", 2, 0)
	require.NoError(t, err)

	_, err = m.Checkout(ctx, "cart")
	require.ErrorContains(t, err, "disk full")

	v1, _ := f.store.Variant(ctx, shirtRed)
	v2, _ := f.store.Variant(ctx, shirtBlue)
	assert.Equal(t, 10, v1.StockQuantity)
	assert.Equal(t, 5, v2.StockQuantity)
	for _, id := range []string{red.ID, blue.ID} {
		r, _ := f.store.Reservation(id)
		assert.Equal(t, StatusPending, r.Status)
	}
	assert.NotContains(t, f.pub.topics(), events.TopicOrderCreated)
	assert.Equal(t, 0, f.store.locks.size())
}

func TestLockTimeout_DisjointVariantsDoNotBlock(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- f.store.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.LockVariant(ctx, shirtRed); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	_, err := f.m.Reserve(ctx, shirtRed, "cart", 1, 0)
	assert.ErrorIs(t, err, ErrLockTimeout)

	_, err = f.m.Reserve(ctx, shirtBlue, "cart", 1, 0)
	assert.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	_, err = f.m.Reserve(ctx, shirtRed, "cart", 1, 0)
	assert.NoError(t, err)
}

func TestMemoryTx_GuardsAndStateChecks(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	res, err := f.m.Reserve(ctx, shirtRed, "cart", 1, 0)
	require.NoError(t, err)

	err = f.store.WithTx(ctx, func(tx Tx) error {
		return tx.DebitStock(ctx, shirtRed, 1)
	})
	assert.ErrorIs(t, err, ErrVariantNotLocked)

	err = f.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockVariant(ctx, shirtRed); err != nil {
			return err
		}
		// locking twice in one tx is a no-op
		if _, err := tx.LockVariant(ctx, shirtRed); err != nil {
			return err
		}
		if err := tx.TransitionReservation(ctx, res.ID, StatusPending, StatusReleased); err != nil {
			return err
		}
		return tx.TransitionReservation(ctx, res.ID, StatusPending, StatusCompleted)
	})
	assert.ErrorIs(t, err, ErrReservationStateChanged)

	got, _ := f.store.Reservation(res.ID)
	assert.Equal(t, StatusPending, got.Status, "failed tx must not apply the first transition")

	err = f.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockVariant(ctx, shirtRed); err != nil {
			return err
		}
		return tx.DebitStock(ctx, shirtRed, 11)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

// txCounter wraps a store and tracks how many transactions are open.
type txCounter struct {
	*MemoryStore
	open *atomic.Int32
}

func (s txCounter) WithTx(ctx context.Context, fn func(Tx) error) error {
	s.open.Add(1)
	defer s.open.Add(-1)
	return s.MemoryStore.WithTx(ctx, fn)
}

// strictPricing refuses pricing reads while a transaction is open.
type strictPricing struct {
	s    *MemoryStore
	open *atomic.Int32
}

var errReadInTx = errors.New("pricing read while a transaction is open")

func (p strictPricing) ActiveRules(ctx context.Context) ([]pricing.Rule, error) {
	if p.open.Load() > 0 {
		return nil, errReadInTx
	}
	return p.s.ActiveRules(ctx)
}

func (p strictPricing) Promotions(ctx context.Context) ([]pricing.Promotion, error) {
	if p.open.Load() > 0 {
		return nil, errReadInTx
	}
	return p.s.Promotions(ctx)
}

func TestCheckout_LoadsPricingBeforeTransaction(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	now := f.clock.Now()

	_, err := f.store.CreatePromotion(ctx, pricing.Promotion{
		Name: "Site", IsActive: true, DiscountPercentage: decimal.NewFromFloat(0.1),
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.store.CreateRule(ctx, pricing.Rule{
		Name: "bulk", Type: pricing.RuleBulk, Priority: 1, IsActive: true,
		Parameters: map[string]any{pricing.ParamMinQuantity: 2, pricing.ParamDiscountPercentage: 0.1},
	})
	require.NoError(t, err)

	open := &atomic.Int32{}
	src := strictPricing{s: f.store, open: open}
	engine := pricing.NewEngine(pricing.DefaultRegistry(), zap.NewNop(), pricing.WithClock(f.clock.Now))
	m := NewManager(txCounter{MemoryStore: f.store, open: open}, orders.NewAssembler(engine, src, src),
		WithClock(f.clock.Now))

	_, err = m.Reserve(ctx, shirtRed, "cart", 2, 0)
	require.NoError(t, err)
	o, err := m.Checkout(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "1620", o.Items[0].UnitPrice.String())
	assert.Equal(t, int32(0), open.Load())
}

// Two carts hold the same two variants, reserved in opposite order, and
// check out concurrently while the sweeper releases a third, expired cart.
// Ascending lock order means none of them can deadlock.
func TestCheckout_OppositeOrderCartsAndSweepDoNotDeadlock(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, 2*time.Second)
		ctx := context.Background()

		_, err := f.m.Reserve(ctx, shirtRed, "cart-a", 3, 0)
		require.NoError(t, err)
		_, err = f.m.Reserve(ctx, shirtBlue, "cart-a", 2, 0)
		require.NoError(t, err)
		_, err = f.m.Reserve(ctx, shirtBlue, "cart-b", 2, 0)
		require.NoError(t, err)
		_, err = f.m.Reserve(ctx, shirtRed, "cart-b", 3, 0)
		require.NoError(t, err)
		_, err = f.m.Reserve(ctx, shirtRed, "cart-stale", 1, time.Minute)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)

		var (
			wg       sync.WaitGroup
			start    = make(chan struct{})
			errA     error
			errB     error
			errSweep error
			swept    int
		)
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			_, errA = f.m.Checkout(ctx, "cart-a")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errB = f.m.Checkout(ctx, "cart-b")
		}()
		go func() {
			defer wg.Done()
			<-start
			swept, errSweep = f.m.ExpireSweep(ctx, f.clock.Now())
		}()

		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		close(start)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: checkout and sweep did not finish", i)
		}

		require.NoError(t, errA)
		require.NoError(t, errB)
		require.NoError(t, errSweep)
		assert.Equal(t, 1, swept)

		red, _ := f.store.Variant(ctx, shirtRed)
		blue, _ := f.store.Variant(ctx, shirtBlue)
		assert.Equal(t, 4, red.StockQuantity)
		assert.Equal(t, 1, blue.StockQuantity)
		assert.Equal(t, 4, f.available(t, shirtRed))
		assert.Equal(t, 0, f.store.locks.size())
	}
}
