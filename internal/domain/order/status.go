package order

import "github.com/go-faster/errors"

// Status is the lifecycle state of an order. Any status may follow any
// other; callers must not assume a stricter state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusOnHold,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
}

var labels = map[Status]string{
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusOnHold:     "On hold",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
	StatusRefunded:   "Refunded",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Label returns the display name of s.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// ParseStatus parses a stored status value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", errors.Errorf("unknown order status %q", v)
	}
	return s, nil
}

// ParseLegacyStatus maps a status term of the legacy shop schema. Anything
// unrecognised, including "on-hold", lands on StatusOnHold.
func ParseLegacyStatus(v string) Status {
	switch v {
	case "pending":
		return StatusPending
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "cancelled":
		return StatusCancelled
	case "refunded":
		return StatusRefunded
	default:
		return StatusOnHold
	}
}
