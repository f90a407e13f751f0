package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ResultStatus is the gateway's verdict on a charge.
type ResultStatus string

const (
	StatusPaid      ResultStatus = "paid"
	StatusFailed    ResultStatus = "failed"
	StatusCancelled ResultStatus = "cancelled"
)

// ChargeParams describes a billing-key charge against a stored credential.
type ChargeParams struct {
	MerchantUID      string
	CustomerUID      string
	Name             string
	Amount           decimal.Decimal
	CancelableAmount decimal.Decimal
	VAT              decimal.Decimal
	Metadata         ChargeMetadata
}

type chargeRequest struct {
	MerchantUID      string          `json:"merchant_uid"`
	CustomerUID      string          `json:"customer_uid"`
	Name             string          `json:"name"`
	Amount           decimal.Decimal `json:"amount"`
	CancelableAmount decimal.Decimal `json:"cancelable_amount"`
	VAT              decimal.Decimal `json:"vat"`
	CustomData       json.RawMessage `json:"custom_data"`
}

// ChargeResult is the gateway's confirmation shape, identical for the
// synchronous response and the asynchronous callback.
type ChargeResult struct {
	Status      ResultStatus    `json:"status"`
	GatewayTxID string          `json:"gateway_tx_id"`
	MerchantUID string          `json:"merchant_uid"`
	Currency    string          `json:"currency"`
	PayMethod   string          `json:"pay_method"`
	ReceiptURL  string          `json:"receipt_url"`
	PaidAtEpoch int64           `json:"paid_at"`
	CustomData  json.RawMessage `json:"custom_data"`
	FailReason  string          `json:"fail_reason,omitempty"`
}

// PaidAt converts the epoch-seconds timestamp into a time, or zero when the
// gateway did not stamp one.
func (r ChargeResult) PaidAt() time.Time {
	if r.PaidAtEpoch <= 0 {
		return time.Time{}
	}
	return time.Unix(r.PaidAtEpoch, 0).UTC()
}

// IssueBillingKeyParams registers a card with the gateway in exchange for a
// reusable billing token (customer uid).
type IssueBillingKeyParams struct {
	CustomerUID string
	CardToken   string
}

type issueBillingKeyRequest struct {
	CustomerUID string `json:"customer_uid"`
	CardToken   string `json:"card_token"`
}

// BillingKey is the gateway's stored-credential descriptor.
type BillingKey struct {
	CustomerUID string  `json:"customer_uid"`
	CardBrand   *string `json:"card_brand,omitempty"`
	CardLast4   *string `json:"card_last4,omitempty"`
}
