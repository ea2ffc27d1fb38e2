package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("entity not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrNoActiveReservations    = errors.New("no active reservations found for this cart")
	ErrLockTimeout             = errors.New("timed out waiting for variant lock")
	ErrInvalidInput            = errors.New("invalid input")
	ErrReservationStateChanged = errors.New("reservation is no longer pending")
	ErrVariantNotLocked        = errors.New("variant is not locked by this transaction")
)

type EntityNotFoundError struct {
	Entity string
	ID     string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Entity, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool { return target == ErrNotFound }

func VariantNotFound(id int64) error {
	return &EntityNotFoundError{Entity: "Variant", ID: fmt.Sprint(id)}
}

type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Requested: %d, Available: %d", e.SKU, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
