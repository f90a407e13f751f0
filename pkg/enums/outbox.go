package enums

import "fmt"

// OutboxTaskKind names the asynchronous work queued through the outbox.
type OutboxTaskKind string

const (
	// OutboxTaskPaymentConfirmation carries a gateway charge result awaiting
	// reconciliation into schedule and transaction state.
	OutboxTaskPaymentConfirmation OutboxTaskKind = "payment.confirmation"
)

var validOutboxTaskKinds = []OutboxTaskKind{
	OutboxTaskPaymentConfirmation,
}

// String implements fmt.Stringer.
func (o OutboxTaskKind) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxTaskKind.
func (o OutboxTaskKind) IsValid() bool {
	for _, candidate := range validOutboxTaskKinds {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxTaskKind converts raw input into an OutboxTaskKind.
func ParseOutboxTaskKind(value string) (OutboxTaskKind, error) {
	for _, candidate := range validOutboxTaskKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox task kind %q", value)
}
