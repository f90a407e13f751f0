package validators

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
)

// ParseAmount converts a request money string into a non-negative decimal.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount is required").
			WithDetails(map[string]any{"field": field})
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric").
			WithDetails(map[string]any{"field": field})
	}
	if value.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative").
			WithDetails(map[string]any{"field": field})
	}
	return value, nil
}
