package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkemp/subcycle-backend/pkg/enums"
)

// MetadataVersion is the current ChargeMetadata schema version. Decoding
// accepts any version up to and including this one so fields can be added
// without breaking older in-flight confirmations.
const MetadataVersion = 1

// ChargeMetadata is the billing context embedded in every charge request and
// echoed back verbatim by the gateway on both the synchronous response and the
// asynchronous callback. It is the only channel carrying intent context into
// reconciliation, so it must round-trip losslessly.
type ChargeMetadata struct {
	Version     int                     `json:"version"`
	BusinessID  string                  `json:"business_id"`
	MerchantUID string                  `json:"merchant_uid"`
	CustomerUID string                  `json:"customer_uid"`
	Name        string                  `json:"name"`
	IntentType  enums.PaymentIntentType `json:"intent_type"`
	BillingPlan enums.BillingPlan       `json:"billing_plan,omitempty"`
	ScheduledAt time.Time               `json:"scheduled_at"`
	Amount      decimal.Decimal         `json:"amount"`
	VAT         decimal.Decimal         `json:"vat"`
}

// Encode serializes the metadata for the gateway's opaque custom_data field.
func (m ChargeMetadata) Encode() (json.RawMessage, error) {
	if m.Version == 0 {
		m.Version = MetadataVersion
	}
	if m.BusinessID == "" {
		return nil, fmt.Errorf("charge metadata: business id is required")
	}
	if m.MerchantUID == "" {
		return nil, fmt.Errorf("charge metadata: merchant uid is required")
	}
	if !m.IntentType.IsValid() {
		return nil, fmt.Errorf("charge metadata: invalid intent type %q", m.IntentType)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("charge metadata: marshal: %w", err)
	}
	return data, nil
}

// DecodeMetadata parses an echoed custom_data blob back into ChargeMetadata.
func DecodeMetadata(raw json.RawMessage) (*ChargeMetadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("charge metadata: empty payload")
	}
	var m ChargeMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("charge metadata: unmarshal: %w", err)
	}
	if m.Version <= 0 || m.Version > MetadataVersion {
		return nil, fmt.Errorf("charge metadata: unsupported version %d", m.Version)
	}
	if m.MerchantUID == "" {
		return nil, fmt.Errorf("charge metadata: merchant uid missing")
	}
	return &m, nil
}
