package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventReservationCreated  = "ReservationCreated"
	EventReservationReleased = "ReservationReleased"
	EventReservationsExpired = "ReservationsExpired"
	EventOrderCreated        = "OrderCreated"
	EventSweepRequested      = "SweepRequested"
)

const Version = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // cart_id or order_id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  Version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Decode unmarshals the payload of env into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// ---- payloads ----

type ReservationCreatedPayload struct {
	ReservationID string    `json:"reservation_id"`
	VariantID     int64     `json:"variant_id"`
	CartID        string    `json:"cart_id"`
	Quantity      int       `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type ReservationReleasedPayload struct {
	CartID         string   `json:"cart_id"`
	VariantID      int64    `json:"variant_id"`
	ReservationIDs []string `json:"reservation_ids"`
	Reason         string   `json:"reason"` // REMOVED | UPDATED
}

type ReservationsExpiredPayload struct {
	AsOf           time.Time `json:"as_of"`
	Count          int       `json:"count"`
	ReservationIDs []string  `json:"reservation_ids,omitempty"`
}

type OrderItemPayload struct {
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID     string             `json:"order_id"`
	CartID      string             `json:"cart_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderItemPayload `json:"items"`
}

type SweepRequestedPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

const (
	ReasonRemoved = "REMOVED"
	ReasonUpdated = "UPDATED"
)
