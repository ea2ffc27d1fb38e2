package inventory

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusReleased  ReservationStatus = "RELEASED"
)

var validNext = map[ReservationStatus]map[ReservationStatus]bool{
	StatusPending:   {StatusCompleted: true, StatusReleased: true},
	StatusCompleted: {},
	StatusReleased:  {},
}

func CanTransition(from, to ReservationStatus) bool {
	return validNext[from][to]
}
