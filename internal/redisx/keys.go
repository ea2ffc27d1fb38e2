package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{idempotency_key} -> order_id (or InFlight)
	KeyIdemCheckout = "idem:checkout:%s"

	// Order snapshot cache: order:{order_id} -> JSON order
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

// InFlight marks an idempotency key whose checkout has not finished yet.
const InFlight = "-"

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = time.Minute
	TTLOrderCache  = 10 * time.Minute
	TTLDedup       = 48 * time.Hour
)
