package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dkemp/subcycle-backend/api/responses"
	"github.com/dkemp/subcycle-backend/api/validators"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

// ConfirmationQueue hands gateway callbacks to the outbox so the worker's
// dispatcher reconciles them on the same path as synchronous charge results.
type ConfirmationQueue interface {
	EnqueueStandalone(ctx context.Context, kind enums.OutboxTaskKind, payload any) error
}

type gatewayCallback struct {
	Status      gateway.ResultStatus `json:"status" validate:"required"`
	GatewayTxID string               `json:"gateway_tx_id" validate:"required"`
	MerchantUID string               `json:"merchant_uid" validate:"required"`
	Currency    string               `json:"currency,omitempty"`
	PayMethod   string               `json:"pay_method,omitempty"`
	ReceiptURL  string               `json:"receipt_url,omitempty"`
	PaidAtEpoch int64                `json:"paid_at,omitempty"`
	CustomData  json.RawMessage      `json:"custom_data,omitempty"`
	FailReason  string               `json:"fail_reason,omitempty"`
}

// GatewayWebhook receives the asynchronous confirmation callback and queues
// it for reconciliation. Processing is idempotent, so the gateway may safely
// redeliver.
func GatewayWebhook(queue ConfirmationQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "confirmation queue unavailable"))
			return
		}

		var payload gatewayCallback
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := gateway.ChargeResult{
			Status:      payload.Status,
			GatewayTxID: payload.GatewayTxID,
			MerchantUID: payload.MerchantUID,
			Currency:    payload.Currency,
			PayMethod:   payload.PayMethod,
			ReceiptURL:  payload.ReceiptURL,
			PaidAtEpoch: payload.PaidAtEpoch,
			CustomData:  payload.CustomData,
			FailReason:  payload.FailReason,
		}
		if err := queue.EnqueueStandalone(r.Context(), enums.OutboxTaskPaymentConfirmation, result); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue confirmation task"))
			return
		}
		responses.WriteMessage(w, http.StatusAccepted, "confirmation accepted")
	}
}
