package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ExpireSweep releases every PENDING hold whose expiry is at or before now
// and returns how many rows it changed. Each variant is handled in its own
// transaction under its lock; rows that moved on meanwhile are skipped, so
// repeated or concurrent sweeps are harmless. A variant whose lock cannot be
// taken in time is left for the next sweep.
func (m *Manager) ExpireSweep(ctx context.Context, now time.Time) (_ int, err error) {
	ctx, span := m.tracer.Start(ctx, "inventory.ExpireSweep", trace.WithAttributes(attribute.String("as_of", now.UTC().Format(time.RFC3339))))
	defer func() { endSpan(span, err) }()

	expired, err := m.store.ExpiredReservations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	byVariant := make(map[int64][]Reservation)
	for _, r := range expired {
		byVariant[r.VariantID] = append(byVariant[r.VariantID], r)
	}
	variantIDs := make([]int64, 0, len(byVariant))
	for id := range byVariant {
		variantIDs = append(variantIDs, id)
	}
	sort.Slice(variantIDs, func(i, j int) bool { return variantIDs[i] < variantIDs[j] })

	var released []string
	for _, id := range variantIDs {
		var done []string
		err := m.store.WithTx(ctx, func(tx Tx) error {
			done = done[:0]
			if _, err := tx.LockVariant(ctx, id); err != nil {
				return err
			}
			for _, r := range byVariant[id] {
				err := tx.TransitionReservation(ctx, r.ID, StatusPending, StatusReleased)
				if errors.Is(err, ErrReservationStateChanged) {
					continue
				}
				if err != nil {
					return err
				}
				done = append(done, r.ID)
			}
			return nil
		})
		if errors.Is(err, ErrLockTimeout) {
			m.log.Warn("sweep skipped busy variant", zap.Int64("variant_id", id))
			continue
		}
		if err != nil {
			return len(released), fmt.Errorf("sweep variant %d: %w", id, err)
		}
		released = append(released, done...)
	}

	if len(released) > 0 {
		m.log.Info("expired reservations released", zap.Int("count", len(released)), zap.Time("as_of", now))
		m.publish(ctx, events.TopicReservationsExpired, events.EventReservationsExpired, "sweep", events.ReservationsExpiredPayload{
			AsOf: now, Count: len(released), ReservationIDs: released,
		})
	}
	return len(released), nil
}
