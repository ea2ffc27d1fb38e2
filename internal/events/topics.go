package events

const (
	TopicReservationCreated  = "inventory.reservation.created"
	TopicReservationReleased = "inventory.reservation.released"
	TopicReservationsExpired = "inventory.reservation.expired"
	TopicOrderCreated        = "order.created"
	TopicSweepRequested      = "inventory.sweep.requested"
)

// Partition key = cart_id, so every event of one cart keeps its order.
func PartitionKey(cartID string) []byte { return []byte(cartID) }

// Publisher is fire-and-forget: delivery failures are logged by the
// implementation and never surface to the business operation.
type Publisher interface {
	Publish(topic string, key []byte, ev Envelope)
}

type NopPublisher struct{}

func (NopPublisher) Publish(string, []byte, Envelope) {}
