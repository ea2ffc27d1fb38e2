package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
)

// MemoryStore implements Store, the pricing sources and orders.Reader in
// process. Per-variant exclusivity comes from a LockTable; transaction
// writes are staged and applied in one critical section at commit, so
// unlocked readers never observe a half-applied checkout.
type MemoryStore struct {
	locks       *LockTable
	lockTimeout time.Duration

	mu           sync.RWMutex
	variants     map[int64]Variant
	reservations map[string]Reservation
	resOrder     []string
	orders       map[string]orders.Order
	rules        []pricing.Rule
	promotions   []pricing.Promotion
	nextRuleID   int64
	nextPromoID  int64
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:        NewLockTable(),
		lockTimeout:  lockTimeout,
		variants:     make(map[int64]Variant),
		reservations: make(map[string]Reservation),
		orders:       make(map[string]orders.Order),
	}
}

// PutVariant seeds or replaces a variant.
func (s *MemoryStore) PutVariant(v Variant) error {
	if v.StockQuantity < 0 {
		return fmt.Errorf("%w: negative stock for variant %d", ErrInvalidInput, v.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
	return nil
}

func (s *MemoryStore) Variant(_ context.Context, id int64) (Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[id]
	if !ok {
		return Variant{}, VariantNotFound(id)
	}
	return v, nil
}

func (s *MemoryStore) HeldQuantity(_ context.Context, variantID int64, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := 0
	for _, r := range s.reservations {
		if r.VariantID == variantID && r.Holds(now) {
			held += r.Quantity
		}
	}
	return held, nil
}

func (s *MemoryStore) ActiveCartReservations(_ context.Context, cartID string, now time.Time) ([]Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reservation
	for _, id := range s.resOrder {
		if r := s.reservations[id]; r.CartID == cartID && r.Holds(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ExpiredReservations(_ context.Context, now time.Time) ([]Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reservation
	for _, id := range s.resOrder {
		if r := s.reservations[id]; r.Status == StatusPending && !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Reservation returns the committed state of one reservation.
func (s *MemoryStore) Reservation(id string) (Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	return r, ok
}

func (s *MemoryStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		s:      s,
		locked: make(map[int64]func()),
		debits: make(map[int64]int),
		status: make(map[string]ReservationStatus),
	}
	defer tx.unlockAll()

	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, qty := range tx.debits {
		if s.variants[id].StockQuantity < qty {
			return fmt.Errorf("commit debit of variant %d: %w", id, ErrInsufficientStock)
		}
	}
	for id, qty := range tx.debits {
		v := s.variants[id]
		v.StockQuantity -= qty
		s.variants[id] = v
	}
	for id, st := range tx.status {
		r := s.reservations[id]
		r.Status = st
		s.reservations[id] = r
	}
	for _, r := range tx.added {
		s.reservations[r.ID] = r
		s.resOrder = append(s.resOrder, r.ID)
	}
	for _, o := range tx.orders {
		s.orders[o.ID] = o
	}
	return nil
}

type memTx struct {
	s      *MemoryStore
	locked map[int64]func()
	debits map[int64]int
	status map[string]ReservationStatus
	added  []Reservation
	orders []orders.Order
}

func (tx *memTx) unlockAll() {
	for _, unlock := range tx.locked {
		unlock()
	}
}

func (tx *memTx) LockVariant(ctx context.Context, id int64) (Variant, error) {
	if _, ok := tx.locked[id]; ok {
		return tx.variant(id), nil
	}
	if _, err := tx.s.Variant(ctx, id); err != nil {
		return Variant{}, err
	}

	lctx := ctx
	if tx.s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, tx.s.lockTimeout)
		defer cancel()
	}
	unlock, err := tx.s.locks.Lock(lctx, id)
	if err != nil {
		return Variant{}, err
	}
	tx.locked[id] = unlock
	return tx.variant(id), nil
}

func (tx *memTx) variant(id int64) Variant {
	tx.s.mu.RLock()
	v := tx.s.variants[id]
	tx.s.mu.RUnlock()
	v.StockQuantity -= tx.debits[id]
	return v
}

// view merges committed rows with this transaction's staged changes.
func (tx *memTx) view(yield func(Reservation)) {
	tx.s.mu.RLock()
	for _, id := range tx.s.resOrder {
		r := tx.s.reservations[id]
		if st, ok := tx.status[id]; ok {
			r.Status = st
		}
		yield(r)
	}
	tx.s.mu.RUnlock()
	for _, r := range tx.added {
		yield(r)
	}
}

func (tx *memTx) HeldQuantity(_ context.Context, variantID int64, now time.Time) (int, error) {
	held := 0
	tx.view(func(r Reservation) {
		if r.VariantID == variantID && r.Holds(now) {
			held += r.Quantity
		}
	})
	return held, nil
}

func (tx *memTx) PendingReservations(_ context.Context, cartID string, variantID int64) ([]Reservation, error) {
	var out []Reservation
	tx.view(func(r Reservation) {
		if r.CartID == cartID && r.VariantID == variantID && r.Status == StatusPending {
			out = append(out, r)
		}
	})
	return out, nil
}

func (tx *memTx) InsertReservation(_ context.Context, r Reservation) error {
	if _, ok := tx.locked[r.VariantID]; !ok {
		return fmt.Errorf("insert reservation: variant %d: %w", r.VariantID, ErrVariantNotLocked)
	}
	if r.ID == "" || r.Quantity <= 0 {
		return fmt.Errorf("%w: reservation needs an id and a positive quantity", ErrInvalidInput)
	}
	tx.added = append(tx.added, r)
	return nil
}

func (tx *memTx) TransitionReservation(_ context.Context, id string, from, to ReservationStatus) error {
	var (
		cur   Reservation
		found bool
	)
	tx.view(func(r Reservation) {
		if r.ID == id {
			cur, found = r, true
		}
	})
	if !found {
		return &EntityNotFoundError{Entity: "Reservation", ID: id}
	}
	if _, ok := tx.locked[cur.VariantID]; !ok {
		return fmt.Errorf("transition reservation %s: variant %d: %w", id, cur.VariantID, ErrVariantNotLocked)
	}
	if cur.Status != from {
		return fmt.Errorf("reservation %s is %s: %w", id, cur.Status, ErrReservationStateChanged)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: reservation transition %s -> %s", ErrInvalidInput, from, to)
	}

	for i := range tx.added {
		if tx.added[i].ID == id {
			tx.added[i].Status = to
			return nil
		}
	}
	tx.status[id] = to
	return nil
}

func (tx *memTx) DebitStock(_ context.Context, variantID int64, quantity int) error {
	if _, ok := tx.locked[variantID]; !ok {
		return fmt.Errorf("debit stock: variant %d: %w", variantID, ErrVariantNotLocked)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: debit quantity must be positive", ErrInvalidInput)
	}
	v := tx.variant(variantID)
	if v.StockQuantity < quantity {
		return &InsufficientStockError{SKU: v.SKU, Requested: quantity, Available: v.StockQuantity}
	}
	tx.debits[variantID] += quantity
	return nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *orders.Order) error {
	cp := *o
	cp.Items = append([]orders.Item(nil), o.Items...)
	tx.orders = append(tx.orders, cp)
	return nil
}

// CreateRule validates r, assigns it an id and stores it.
func (s *MemoryStore) CreateRule(_ context.Context, r pricing.Rule) (pricing.Rule, error) {
	if err := r.Validate(); err != nil {
		return pricing.Rule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	r.ID = s.nextRuleID
	s.rules = append(s.rules, r)
	return r, nil
}

func (s *MemoryStore) ActiveRules(context.Context) ([]pricing.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pricing.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// Rules lists every rule, active or not, by id.
func (s *MemoryStore) Rules(context.Context) ([]pricing.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pricing.Rule(nil), s.rules...), nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %d: %w", id, pricing.ErrNotFound)
}

func (s *MemoryStore) CreatePromotion(_ context.Context, p pricing.Promotion) (pricing.Promotion, error) {
	if err := p.Validate(); err != nil {
		return pricing.Promotion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPromoID++
	p.ID = s.nextPromoID
	s.promotions = append(s.promotions, p)
	return p, nil
}

func (s *MemoryStore) ActivePromotions(_ context.Context, categoryID *int64, now time.Time) ([]pricing.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pricing.Promotion
	for _, p := range s.promotions {
		if p.AppliesAt(now, categoryID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) Promotions(context.Context) ([]pricing.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pricing.Promotion(nil), s.promotions...), nil
}

func (s *MemoryStore) DeletePromotion(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.promotions {
		if p.ID == id {
			s.promotions = append(s.promotions[:i], s.promotions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("promotion %d: %w", id, pricing.ErrNotFound)
}

func (s *MemoryStore) Order(_ context.Context, id string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, orders.ErrOrderNotFound)
	}
	o.Items = append([]orders.Item(nil), o.Items...)
	return &o, nil
}

func (s *MemoryStore) LowStock(_ context.Context, threshold int) ([]Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Variant
	for _, v := range s.variants {
		if v.StockQuantity < threshold {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StockQuantity != out[j].StockQuantity {
			return out[i].StockQuantity < out[j].StockQuantity
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) TopSelling(_ context.Context, limit int) ([]VariantSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVariant := make(map[int64]*VariantSales)
	for _, o := range s.orders {
		for _, it := range o.Items {
			vs, ok := byVariant[it.VariantID]
			if !ok {
				vs = &VariantSales{VariantID: it.VariantID, SKU: s.variants[it.VariantID].SKU}
				byVariant[it.VariantID] = vs
			}
			vs.TotalSold += it.Quantity
		}
	}
	out := make([]VariantSales, 0, len(byVariant))
	for _, vs := range byVariant {
		out = append(out, *vs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSold != out[j].TotalSold {
			return out[i].TotalSold > out[j].TotalSold
		}
		return out[i].VariantID < out[j].VariantID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
