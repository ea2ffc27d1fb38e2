package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/redis/go-redis/v9"
)

// OrderCache is a read-through cache in front of an orders.Reader. Orders
// are immutable, so entries never need invalidation.
type OrderCache struct {
	rdb  redis.Cmdable
	next orders.Reader
}

func NewOrderCache(rdb redis.Cmdable, next orders.Reader) *OrderCache {
	return &OrderCache{rdb: rdb, next: next}
}

func (c *OrderCache) Order(ctx context.Context, id string) (*orders.Order, error) {
	key := fmt.Sprintf(KeyOrder, id)
	if raw, ok, err := Get(ctx, c.rdb, key); err == nil && ok {
		var o orders.Order
		if json.Unmarshal([]byte(raw), &o) == nil {
			return &o, nil
		}
	}

	o, err := c.next.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(o); err == nil {
		_ = c.rdb.Set(ctx, key, b, TTLOrderCache).Err()
	}
	return o, nil
}
