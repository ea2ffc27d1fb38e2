package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

// CheckoutKeys remembers which order an idempotent checkout produced.
type CheckoutKeys struct {
	rdb redis.Cmdable
}

func NewCheckoutKeys(rdb redis.Cmdable) *CheckoutKeys { return &CheckoutKeys{rdb: rdb} }

// Begin claims key for a new checkout. When the key was already used it
// returns the stored order id instead; ErrInFlight when that checkout is
// still running.
func (k *CheckoutKeys) Begin(ctx context.Context, key string) (orderID string, started bool, err error) {
	rkey := fmt.Sprintf(KeyIdemCheckout, key)
	won, err := Claim(ctx, k.rdb, rkey, InFlight, TTLInFlight)
	if err != nil {
		return "", false, err
	}
	if won {
		return "", true, nil
	}
	val, ok, err := Get(ctx, k.rdb, rkey)
	switch {
	case err != nil:
		return "", false, err
	case !ok:
		// expired between SETNX and GET; try once more
		won, err = Claim(ctx, k.rdb, rkey, InFlight, TTLInFlight)
		return "", won, err
	case val == InFlight:
		return "", false, ErrInFlight
	}
	return val, false, nil
}

func (k *CheckoutKeys) Complete(ctx context.Context, key, orderID string) error {
	return k.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, key), orderID, TTLIdempotency).Err()
}

// Abandon frees key after a failed checkout so the client can retry.
func (k *CheckoutKeys) Abandon(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, key)).Err()
}
