package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkemp/subcycle-backend/api/responses"
	"github.com/dkemp/subcycle-backend/api/validators"
	"github.com/dkemp/subcycle-backend/internal/subscriptions"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

type subscribeRequest struct {
	BillingPlan string `json:"billing_plan" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	VAT         string `json:"vat,omitempty"`
	Name        string `json:"name,omitempty"`
}

type changeSubscriptionRequest struct {
	BillingPlan string `json:"billing_plan" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

type subscribeResponse struct {
	GatewayTxID string `json:"gateway_tx_id"`
	MerchantUID string `json:"merchant_uid"`
	Status      string `json:"status"`
	ReceiptURL  string `json:"receipt_url,omitempty"`
}

type scheduleEntryResponse struct {
	MerchantUID string `json:"merchant_uid"`
	BillingPlan string `json:"billing_plan"`
	Amount      string `json:"amount"`
	VAT         string `json:"vat"`
	Schedule    string `json:"schedule"`
	Status      string `json:"status"`
}

// SubscriptionCreate submits the initial charge for a new subscription.
func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vat, err := validators.ParseAmount("vat", orZero(payload.VAT))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Subscribe(r.Context(), businessID, subscriptions.SubscribeInput{
			BillingPlan: enums.BillingPlan(payload.BillingPlan),
			Amount:      amount,
			VAT:         vat,
			Name:        payload.Name,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, subscribeResponse{
			GatewayTxID: result.GatewayTxID,
			MerchantUID: result.MerchantUID,
			Status:      string(result.Status),
			ReceiptURL:  result.ReceiptURL,
		})
	}
}

// SubscriptionChange swaps plan and amount on the in-flight billing cycle.
func SubscriptionChange(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		var payload changeSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.ChangeSubscription(r.Context(), businessID, subscriptions.ChangeInput{
			BillingPlan: enums.BillingPlan(payload.BillingPlan),
			Amount:      amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, scheduleEntryResponse{
			MerchantUID: entry.MerchantUID,
			BillingPlan: string(entry.BillingPlan),
			Amount:      entry.Amount.String(),
			VAT:         entry.VAT.String(),
			Schedule:    entry.Schedule.Format("2006-01-02"),
			Status:      string(entry.Status),
		})
	}
}

// SubscriptionPause acknowledges the request with the unsupported-operation
// contract rather than pretending to succeed.
func SubscriptionPause(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Pause(r.Context(), chi.URLParam(r, "businessID"))
		responses.WriteError(r.Context(), logg, w, err)
	}
}

// SubscriptionResume mirrors SubscriptionPause.
func SubscriptionResume(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Resume(r.Context(), chi.URLParam(r, "businessID"))
		responses.WriteError(r.Context(), logg, w, err)
	}
}

// SubscriptionRefund mirrors SubscriptionPause.
func SubscriptionRefund(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Refund(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "gatewayTxID"))
		responses.WriteError(r.Context(), logg, w, err)
	}
}

func orZero(raw string) string {
	if raw == "" {
		return "0"
	}
	return raw
}
