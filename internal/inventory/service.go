package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/events"
	kafkax "github.com/ariefcatur/go-realtime-inventory/internal/kafka"
	"github.com/ariefcatur/go-realtime-inventory/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sweeper is what the tick handler drives; *Manager satisfies it.
type Sweeper interface {
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

// SweepService turns inventory.sweep.requested events into expiry sweeps.
type SweepService struct {
	Sweeper     Sweeper
	Redis       redis.Cmdable
	Log         *zap.Logger
	ServiceName string
	Now         func() time.Time
}

// HandleSweepRequested is installed as the consumer handler. A nil return
// lets the consumer commit the offset.
func (s *SweepService) HandleSweepRequested(ctx context.Context, m kafkago.Message) error {
	// headers let other event types through without decoding the body
	if typ, ok := kafkax.HeaderValue(m, kafkax.HeaderEventType); ok && typ != events.EventSweepRequested {
		return nil
	}

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and let the offset move on
		s.Log.Error("decode sweep envelope", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	if env.EventType != events.EventSweepRequested {
		return nil
	}

	// dedup by event id. A failed sweep drops the claim, but the consumer
	// does not redeliver the tick once a later offset commits; the next
	// tick covers whatever this one missed.
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	won, err := redisx.Claim(ctx, s.Redis, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim %s: %w", dkey, err)
	}
	if !won {
		s.Log.Debug("duplicate sweep tick", zap.String("event_id", env.EventID))
		return nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	n, err := s.Sweeper.ExpireSweep(ctx, now())
	if err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("sweep for event %s: %w", env.EventID, err)
	}
	s.Log.Info("sweep tick handled", zap.String("event_id", env.EventID), zap.Int("released", n))
	return nil
}
