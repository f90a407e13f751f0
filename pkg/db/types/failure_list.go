package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SubmittedCharge captures the parameters that were sent to the gateway for a
// charge attempt, kept for diagnostics when the attempt fails.
type SubmittedCharge struct {
	MerchantUID string          `json:"merchant_uid"`
	CustomerUID string          `json:"customer_uid"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	VAT         decimal.Decimal `json:"vat"`
}

// FailureRecord is one declined charge attempt against a schedule entry.
type FailureRecord struct {
	GatewayTxID string          `json:"gateway_tx_id"`
	Params      SubmittedCharge `json:"params"`
	Reason      string          `json:"reason"`
	FailedAt    time.Time       `json:"failed_at"`
}

// FailureList is a JSONB column holding failure records, most recent first.
type FailureList []FailureRecord

// Prepend returns a new list with record at the front.
func (f FailureList) Prepend(record FailureRecord) FailureList {
	out := make(FailureList, 0, len(f)+1)
	out = append(out, record)
	out = append(out, f...)
	return out
}

func (f FailureList) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("FailureList: marshal: %w", err)
	}
	return string(data), nil
}

func (f *FailureList) Scan(src any) error {
	if src == nil {
		*f = FailureList{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("FailureList: unsupported Scan type %T", src)
	}
	if len(data) == 0 {
		*f = FailureList{}
		return nil
	}
	return json.Unmarshal(data, f)
}
