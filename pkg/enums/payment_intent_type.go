package enums

import "fmt"

// PaymentIntentType classifies why a charge is being submitted.
type PaymentIntentType string

const (
	PaymentIntentInitial   PaymentIntentType = "INITIAL"
	PaymentIntentScheduled PaymentIntentType = "SCHEDULED"
	// PaymentIntentRefund is reserved; no current flow submits it.
	PaymentIntentRefund PaymentIntentType = "REFUND"
)

var validPaymentIntentTypes = []PaymentIntentType{
	PaymentIntentInitial,
	PaymentIntentScheduled,
	PaymentIntentRefund,
}

// String implements fmt.Stringer.
func (p PaymentIntentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentType.
func (p PaymentIntentType) IsValid() bool {
	for _, candidate := range validPaymentIntentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentIntentType converts raw input into a PaymentIntentType.
func ParsePaymentIntentType(value string) (PaymentIntentType, error) {
	for _, candidate := range validPaymentIntentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent type %q", value)
}
