package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dkemp/subcycle-backend/api/responses"
	"github.com/dkemp/subcycle-backend/api/validators"
	"github.com/dkemp/subcycle-backend/internal/paymentmethods"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

type paymentMethodCreateRequest struct {
	CustomerUID string `json:"customer_uid" validate:"required"`
	CardToken   string `json:"card_token" validate:"required"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

type setDefaultRequest struct {
	CustomerUID string `json:"customer_uid" validate:"required"`
}

type paymentMethodResponse struct {
	ID          string    `json:"id"`
	CustomerUID string    `json:"customer_uid"`
	CardBrand   *string   `json:"card_brand,omitempty"`
	CardLast4   *string   `json:"card_last4,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPaymentMethodResponse(m models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:          m.ID.String(),
		CustomerUID: m.CustomerUID,
		CardBrand:   m.CardBrand,
		CardLast4:   m.CardLast4,
		IsDefault:   m.IsDefault,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// PaymentMethodCreate registers a new vaulted credential for the business.
func PaymentMethodCreate(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		var payload paymentMethodCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.Register(r.Context(), businessID, paymentmethods.RegisterInput{
			CustomerUID: payload.CustomerUID,
			CardToken:   payload.CardToken,
			IsDefault:   payload.IsDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentMethodResponse(*method))
	}
}

// PaymentMethodList returns the business's vaulted credentials.
func PaymentMethodList(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		methods, err := svc.List(r.Context(), businessID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentMethodResponse, 0, len(methods))
		for _, m := range methods {
			out = append(out, toPaymentMethodResponse(m))
		}
		responses.WriteSuccess(w, out)
	}
}

// PaymentMethodDelete removes a credential from the vault and the store.
func PaymentMethodDelete(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")
		methodID, err := uuid.Parse(chi.URLParam(r, "methodID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "method id must be a uuid"))
			return
		}

		if err := svc.Delete(r.Context(), businessID, methodID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "payment method deleted")
	}
}

// PaymentMethodSetDefault swaps the business's default credential. If the
// business has an outstanding failed cycle it is retried with the new default.
func PaymentMethodSetDefault(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		var payload setDefaultRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.SetDefault(r.Context(), businessID, payload.CustomerUID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentMethodResponse(*method))
	}
}
