package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	lock := fmt.Errorf("lock variant: %w", &pgconn.PgError{Code: codeLockNotAvailable, Message: "canceling statement due to lock timeout"})
	assert.ErrorIs(t, translate(lock), inventory.ErrLockTimeout)

	deadlock := &pgconn.PgError{Code: codeDeadlock, Message: "deadlock detected"}
	assert.ErrorIs(t, translate(deadlock), inventory.ErrLockTimeout)

	stock := &pgconn.PgError{Code: codeCheckViolation, TableName: "product_variants"}
	assert.ErrorIs(t, translate(stock), inventory.ErrInsufficientStock)

	other := &pgconn.PgError{Code: codeCheckViolation, TableName: "promotions"}
	assert.Same(t, other, translate(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, translate(plain))
}
