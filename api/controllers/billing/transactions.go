package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dkemp/subcycle-backend/api/responses"
	"github.com/dkemp/subcycle-backend/api/validators"
	internalbilling "github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/pagination"
)

type transactionLister interface {
	ListTransactions(ctx context.Context, query internalbilling.ListTransactionsQuery) ([]models.PaymentTransaction, *pagination.Cursor, error)
}

type transactionResponse struct {
	ID          string     `json:"id"`
	GatewayTxID string     `json:"gateway_tx_id"`
	MerchantUID string     `json:"merchant_uid"`
	IntentType  string     `json:"intent_type"`
	Name        string     `json:"name"`
	Currency    string     `json:"currency"`
	Amount      string     `json:"amount"`
	VAT         string     `json:"vat"`
	Status      string     `json:"status"`
	ReceiptURL  *string    `json:"receipt_url,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type transactionListResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// TransactionList returns the business's charge history, newest first.
func TransactionList(repo transactionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		query := internalbilling.ListTransactionsQuery{
			BusinessID: businessID,
			Limit:      limit,
			Cursor:     cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.PaymentStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter"))
				return
			}
			query.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("intent_type")); raw != "" {
			intent := enums.PaymentIntentType(raw)
			if !intent.IsValid() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "unknown intent type filter"))
				return
			}
			query.IntentType = &intent
		}

		rows, next, err := repo.ListTransactions(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions"))
			return
		}

		out := transactionListResponse{Items: make([]transactionResponse, 0, len(rows))}
		for _, row := range rows {
			out.Items = append(out.Items, transactionResponse{
				ID:          row.ID.String(),
				GatewayTxID: row.GatewayTxID,
				MerchantUID: row.MerchantUID,
				IntentType:  string(row.IntentType),
				Name:        row.Name,
				Currency:    row.Currency,
				Amount:      row.Amount.String(),
				VAT:         row.VAT.String(),
				Status:      string(row.Status),
				ReceiptURL:  row.ReceiptURL,
				ScheduledAt: row.ScheduledAt.UTC(),
				PaidAt:      row.PaidAt,
				CreatedAt:   row.CreatedAt.UTC(),
			})
		}
		if next != nil {
			out.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, out)
	}
}
