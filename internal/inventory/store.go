package inventory

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
)

// Store is the persistence boundary for variants, the reservation ledger and
// committed orders. Reads outside WithTx are unlocked snapshots and must not
// drive state changes.
type Store interface {
	Variant(ctx context.Context, id int64) (Variant, error)
	HeldQuantity(ctx context.Context, variantID int64, now time.Time) (int, error)
	// ActiveCartReservations lists PENDING, unexpired rows of a cart.
	ActiveCartReservations(ctx context.Context, cartID string, now time.Time) ([]Reservation, error)
	// ExpiredReservations lists PENDING rows with expires_at <= now.
	ExpiredReservations(ctx context.Context, now time.Time) ([]Reservation, error)

	// WithTx runs fn as one atomic unit. Locks taken through tx are held
	// until fn returns; an error from fn discards every write.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// LockVariant takes the exclusive per-variant lock, waiting at most the
	// store's lock timeout (ErrLockTimeout). Locking the same id twice in
	// one tx returns the already-held view.
	LockVariant(ctx context.Context, id int64) (Variant, error)
	HeldQuantity(ctx context.Context, variantID int64, now time.Time) (int, error)
	// PendingReservations lists PENDING rows of cartID on variantID, expired or not.
	PendingReservations(ctx context.Context, cartID string, variantID int64) ([]Reservation, error)

	InsertReservation(ctx context.Context, r Reservation) error
	// TransitionReservation moves id from -> to; ErrReservationStateChanged
	// when the row is no longer in from.
	TransitionReservation(ctx context.Context, id string, from, to ReservationStatus) error
	DebitStock(ctx context.Context, variantID int64, quantity int) error
	InsertOrder(ctx context.Context, o *orders.Order) error
}
