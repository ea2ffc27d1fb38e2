package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes the store translates.
const (
	codeLockNotAvailable = "55P03"
	codeDeadlock         = "40P01"
	codeCheckViolation   = "23514"
)

const variantColumns = `v.id, v.product_id, v.sku, v.stock_quantity, v.price_adjustment, p.base_price, p.category_id`

const variantFrom = ` FROM product_variants v JOIN products p ON p.id = v.product_id WHERE v.id = $1`

const reservationColumns = `id, variant_id, cart_id, quantity, expires_at, status, created_at`

// querier is what both the pool and a transaction offer.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the Postgres inventory.Store. Per-variant exclusivity is a row
// lock on product_variants, bounded by lock_timeout.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

func (s *Store) Variant(ctx context.Context, id int64) (inventory.Variant, error) {
	return scanVariant(s.pool.QueryRow(ctx, `SELECT `+variantColumns+variantFrom, id), id)
}

func (s *Store) HeldQuantity(ctx context.Context, variantID int64, now time.Time) (int, error) {
	return heldQuantity(ctx, s.pool, variantID, now)
}

func (s *Store) ActiveCartReservations(ctx context.Context, cartID string, now time.Time) ([]inventory.Reservation, error) {
	return queryReservations(ctx, s.pool, `SELECT `+reservationColumns+` FROM inventory_reservations
		WHERE cart_id = $1 AND status = 'PENDING' AND expires_at > $2
		ORDER BY created_at, id`, cartID, now)
}

func (s *Store) ExpiredReservations(ctx context.Context, now time.Time) ([]inventory.Reservation, error) {
	return queryReservations(ctx, s.pool, `SELECT `+reservationColumns+` FROM inventory_reservations
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY variant_id, created_at, id`, now)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.Background())
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	if err = fn(&pgTx{tx: tx, locked: make(map[int64]bool)}); err != nil {
		return translate(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	locked map[int64]bool
}

func (t *pgTx) LockVariant(ctx context.Context, id int64) (inventory.Variant, error) {
	v, err := scanVariant(t.tx.QueryRow(ctx, `SELECT `+variantColumns+variantFrom+` FOR UPDATE OF v`, id), id)
	if err != nil {
		return inventory.Variant{}, translate(err)
	}
	t.locked[id] = true
	return v, nil
}

func (t *pgTx) HeldQuantity(ctx context.Context, variantID int64, now time.Time) (int, error) {
	return heldQuantity(ctx, t.tx, variantID, now)
}

func (t *pgTx) PendingReservations(ctx context.Context, cartID string, variantID int64) ([]inventory.Reservation, error) {
	return queryReservations(ctx, t.tx, `SELECT `+reservationColumns+` FROM inventory_reservations
		WHERE cart_id = $1 AND variant_id = $2 AND status = 'PENDING'
		ORDER BY created_at, id`, cartID, variantID)
}

func (t *pgTx) InsertReservation(ctx context.Context, r inventory.Reservation) error {
	if !t.locked[r.VariantID] {
		return fmt.Errorf("insert reservation: variant %d: %w", r.VariantID, inventory.ErrVariantNotLocked)
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.VariantID, r.CartID, r.Quantity, r.ExpiresAt, string(r.Status), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *pgTx) TransitionReservation(ctx context.Context, id string, from, to inventory.ReservationStatus) error {
	var (
		variantID int64
		status    string
	)
	err := t.tx.QueryRow(ctx, `SELECT variant_id, status FROM inventory_reservations WHERE id = $1`, id).
		Scan(&variantID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return &inventory.EntityNotFoundError{Entity: "Reservation", ID: id}
	}
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", id, err)
	}
	if !t.locked[variantID] {
		return fmt.Errorf("transition reservation %s: variant %d: %w", id, variantID, inventory.ErrVariantNotLocked)
	}
	if !inventory.CanTransition(from, to) {
		return fmt.Errorf("%w: reservation transition %s -> %s", inventory.ErrInvalidInput, from, to)
	}

	tag, err := t.tx.Exec(ctx, `UPDATE inventory_reservations SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s is %s: %w", id, status, inventory.ErrReservationStateChanged)
	}
	return nil
}

func (t *pgTx) DebitStock(ctx context.Context, variantID int64, quantity int) error {
	if !t.locked[variantID] {
		return fmt.Errorf("debit stock: variant %d: %w", variantID, inventory.ErrVariantNotLocked)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: debit quantity must be positive", inventory.ErrInvalidInput)
	}
	tag, err := t.tx.Exec(ctx, `UPDATE product_variants SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`, variantID, quantity)
	if err != nil {
		return fmt.Errorf("debit variant %d: %w", variantID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		sku   string
		stock int
	)
	if err := t.tx.QueryRow(ctx, `SELECT sku, stock_quantity FROM product_variants WHERE id = $1`, variantID).
		Scan(&sku, &stock); err != nil {
		return fmt.Errorf("debit variant %d: %w", variantID, err)
	}
	return &inventory.InsufficientStockError{SKU: sku, Requested: quantity, Available: stock}
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO orders (id, cart_id, total_amount, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.CartID, o.TotalAmount, o.CreatedAt)
	for _, it := range o.Items {
		var resID any
		if it.ReservationID != "" {
			resID = it.ReservationID
		}
		batch.Queue(`INSERT INTO order_items (order_id, reservation_id, variant_id, sku, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`, o.ID, resID, it.VariantID, it.SKU, it.Quantity, it.UnitPrice)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func scanVariant(row pgx.Row, id int64) (inventory.Variant, error) {
	var v inventory.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.StockQuantity, &v.PriceAdjustment, &v.ProductBasePrice, &v.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Variant{}, inventory.VariantNotFound(id)
	}
	if err != nil {
		return inventory.Variant{}, fmt.Errorf("load variant %d: %w", id, err)
	}
	return v, nil
}

func heldQuantity(ctx context.Context, q querier, variantID int64, now time.Time) (int, error) {
	var held int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory_reservations
		WHERE variant_id = $1 AND status = 'PENDING' AND expires_at > $2`, variantID, now).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("held quantity of variant %d: %w", variantID, err)
	}
	return int(held), nil
}

func queryReservations(ctx context.Context, q querier, sql string, args ...any) ([]inventory.Reservation, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Reservation, error) {
		var (
			r      inventory.Reservation
			status string
		)
		err := row.Scan(&r.ID, &r.VariantID, &r.CartID, &r.Quantity, &r.ExpiresAt, &status, &r.CreatedAt)
		r.Status = inventory.ReservationStatus(status)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reservations: %w", err)
	}
	return out, nil
}

// translate maps lock waits and deadlocks to the retryable ErrLockTimeout
// and a stock CHECK violation to ErrInsufficientStock.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeDeadlock:
		return fmt.Errorf("%w: %s", inventory.ErrLockTimeout, pgErr.Message)
	case codeCheckViolation:
		if pgErr.TableName == "product_variants" {
			return fmt.Errorf("%w: %s", inventory.ErrInsufficientStock, pgErr.Message)
		}
	}
	return err
}
