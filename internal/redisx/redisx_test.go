package redisx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckoutKeys_Lifecycle(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	keys := NewCheckoutKeys(rdb)

	id, started, err := keys.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Empty(t, id)

	_, _, err = keys.Begin(ctx, "k1")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, keys.Complete(ctx, "k1", "order-1"))
	id, started, err = keys.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, "order-1", id)
}

func TestCheckoutKeys_AbandonAllowsRetry(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	keys := NewCheckoutKeys(rdb)

	_, started, err := keys.Begin(ctx, "k2")
	require.NoError(t, err)
	require.True(t, started)
	require.NoError(t, keys.Abandon(ctx, "k2"))

	_, started, err = keys.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestCheckoutKeys_InFlightExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	keys := NewCheckoutKeys(rdb)

	_, _, err := keys.Begin(ctx, "k3")
	require.NoError(t, err)
	mr.FastForward(TTLInFlight + time.Second)

	_, started, err := keys.Begin(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, started)
}

type countingReader struct {
	calls int
	order *orders.Order
}

func (r *countingReader) Order(_ context.Context, id string) (*orders.Order, error) {
	r.calls++
	if r.order == nil || r.order.ID != id {
		return nil, fmt.Errorf("%s: %w", id, orders.ErrOrderNotFound)
	}
	cp := *r.order
	return &cp, nil
}

func TestOrderCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	src := &countingReader{order: &orders.Order{
		ID: "o-1", CartID: "c-1", TotalAmount: decimal.RequireFromString("1620.00"),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Items:     []orders.Item{{VariantID: 1, SKU: "TS-M", Quantity: 1, UnitPrice: decimal.RequireFromString("1620.00")}},
	}}
	cache := NewOrderCache(rdb, src)

	first, err := cache.Order(ctx, "o-1")
	require.NoError(t, err)
	second, err := cache.Order(ctx, "o-1")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists(fmt.Sprintf(KeyOrder, "o-1")))
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	assert.Equal(t, "TS-M", second.Items[0].SKU)
}

func TestOrderCache_MissPassesErrorThrough(t *testing.T) {
	_, rdb := newTestRedis(t)
	cache := NewOrderCache(rdb, &countingReader{})

	_, err := cache.Order(context.Background(), "nope")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	key := fmt.Sprintf(KeyDedup, "sweeper", "ev-1")

	won, err := Claim(ctx, rdb, key, "1", TTLDedup)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = Claim(ctx, rdb, key, "1", TTLDedup)
	require.NoError(t, err)
	assert.False(t, won)

	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 0 && ttl <= TTLDedup, "ttl %s", ttl)
}
