package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalbilling "github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/paymentmethods"
	"github.com/dkemp/subcycle-backend/internal/subscriptions"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/pagination"
	"github.com/dkemp/subcycle-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test"})
}

func newBusinessRouter(configure func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Route("/businesses/{businessID}", configure)
	return r
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) types.SuccessEnvelope {
	t.Helper()
	var envelope types.SuccessEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func TestPaymentMethodCreate(t *testing.T) {
	svc := &stubPaymentMethods{registered: &models.PaymentMethod{
		ID:          uuid.New(),
		BusinessID:  "B1",
		CustomerUID: "cust_1",
		IsDefault:   true,
		CreatedAt:   time.Now(),
	}}
	router := newBusinessRouter(func(r chi.Router) {
		r.Post("/payment-methods", PaymentMethodCreate(svc, testLogger()))
	})

	body := `{"customer_uid":"cust_1","card_token":"tok_abc","is_default":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/businesses/B1/payment-methods", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastBusinessID != "B1" {
		t.Fatalf("business id not routed, got %q", svc.lastBusinessID)
	}
	envelope := decodeEnvelope(t, rec)
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
}

func TestPaymentMethodCreateValidation(t *testing.T) {
	router := newBusinessRouter(func(r chi.Router) {
		r.Post("/payment-methods", PaymentMethodCreate(&stubPaymentMethods{}, testLogger()))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/businesses/B1/payment-methods", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentMethodDeleteRejectsBadID(t *testing.T) {
	router := newBusinessRouter(func(r chi.Router) {
		r.Delete("/payment-methods/{methodID}", PaymentMethodDelete(&stubPaymentMethods{}, testLogger()))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/businesses/B1/payment-methods/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubscriptionCreate(t *testing.T) {
	svc := &stubSubscriptions{result: &gateway.ChargeResult{
		Status:      gateway.StatusPaid,
		GatewayTxID: "imp_100",
		MerchantUID: "B1_ch0",
	}}
	router := newBusinessRouter(func(r chi.Router) {
		r.Post("/subscription", SubscriptionCreate(svc, testLogger()))
	})

	body := `{"billing_plan":"4_WEEK","amount":"45000","vat":"4500"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/businesses/B1/subscription", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastInput.BillingPlan != enums.BillingPlan4Week {
		t.Fatalf("plan not forwarded: %+v", svc.lastInput)
	}
	if !svc.lastInput.Amount.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("amount not parsed: %s", svc.lastInput.Amount)
	}
}

func TestSubscriptionCreateNegativeAmount(t *testing.T) {
	router := newBusinessRouter(func(r chi.Router) {
		r.Post("/subscription", SubscriptionCreate(&stubSubscriptions{}, testLogger()))
	})

	body := `{"billing_plan":"4_WEEK","amount":"-1"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/businesses/B1/subscription", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubscriptionPauseIsNotImplemented(t *testing.T) {
	router := newBusinessRouter(func(r chi.Router) {
		r.Post("/subscription/pause", SubscriptionPause(&stubSubscriptions{}, testLogger()))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/businesses/B1/subscription/pause", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestTransactionListPagination(t *testing.T) {
	now := time.Now().UTC()
	lister := &stubTransactionLister{
		rows: []models.PaymentTransaction{{
			ID:          uuid.New(),
			BusinessID:  "B1",
			GatewayTxID: "imp_1",
			MerchantUID: "B1_ch1",
			IntentType:  enums.PaymentIntentScheduled,
			Currency:    "KRW",
			Amount:      decimal.NewFromInt(45000),
			VAT:         decimal.NewFromInt(4500),
			Status:      enums.PaymentStatusPaid,
			ScheduledAt: now,
			CreatedAt:   now,
		}},
		next: &pagination.Cursor{CreatedAt: now, ID: uuid.New()},
	}
	router := newBusinessRouter(func(r chi.Router) {
		r.Get("/transactions", TransactionList(lister, testLogger()))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/businesses/B1/transactions?limit=10&status=PAID", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if lister.lastQuery.BusinessID != "B1" || lister.lastQuery.Limit != 10 {
		t.Fatalf("query not forwarded: %+v", lister.lastQuery)
	}
	if lister.lastQuery.Status == nil || *lister.lastQuery.Status != enums.PaymentStatusPaid {
		t.Fatal("status filter not forwarded")
	}

	envelope := decodeEnvelope(t, rec)
	data, _ := json.Marshal(envelope.Data)
	var out transactionListResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out.Items) != 1 || out.NextCursor == "" {
		t.Fatalf("unexpected page: %+v", out)
	}
}

func TestTransactionListRejectsBadStatus(t *testing.T) {
	router := newBusinessRouter(func(r chi.Router) {
		r.Get("/transactions", TransactionList(&stubTransactionLister{}, testLogger()))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/businesses/B1/transactions?status=BOGUS", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

type stubPaymentMethods struct {
	registered     *models.PaymentMethod
	lastBusinessID string
}

func (s *stubPaymentMethods) Register(ctx context.Context, businessID string, input paymentmethods.RegisterInput) (*models.PaymentMethod, error) {
	s.lastBusinessID = businessID
	if s.registered == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vault unavailable")
	}
	return s.registered, nil
}

func (s *stubPaymentMethods) List(ctx context.Context, businessID string) ([]models.PaymentMethod, error) {
	s.lastBusinessID = businessID
	return nil, nil
}

func (s *stubPaymentMethods) Delete(ctx context.Context, businessID string, methodID uuid.UUID) error {
	s.lastBusinessID = businessID
	return nil
}

func (s *stubPaymentMethods) SetDefault(ctx context.Context, businessID, customerUID string) (*models.PaymentMethod, error) {
	s.lastBusinessID = businessID
	if s.registered == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	return s.registered, nil
}

type stubSubscriptions struct {
	result    *gateway.ChargeResult
	entry     *models.BillingScheduleEntry
	lastInput subscriptions.SubscribeInput
}

func (s *stubSubscriptions) Subscribe(ctx context.Context, businessID string, input subscriptions.SubscribeInput) (*gateway.ChargeResult, error) {
	s.lastInput = input
	if s.result == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")
	}
	return s.result, nil
}

func (s *stubSubscriptions) ChangeSubscription(ctx context.Context, businessID string, input subscriptions.ChangeInput) (*models.BillingScheduleEntry, error) {
	if s.entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active billing schedule for business")
	}
	return s.entry, nil
}

func (s *stubSubscriptions) Activate(ctx context.Context, businessID string) error { return nil }

func (s *stubSubscriptions) Pause(ctx context.Context, businessID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "subscription pause is not supported")
}

func (s *stubSubscriptions) Resume(ctx context.Context, businessID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "subscription resume is not supported")
}

func (s *stubSubscriptions) Refund(ctx context.Context, businessID, gatewayTxID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "refunds are not supported")
}

type stubTransactionLister struct {
	rows      []models.PaymentTransaction
	next      *pagination.Cursor
	lastQuery internalbilling.ListTransactionsQuery
}

func (s *stubTransactionLister) ListTransactions(ctx context.Context, query internalbilling.ListTransactionsQuery) ([]models.PaymentTransaction, *pagination.Cursor, error) {
	s.lastQuery = query
	return s.rows, s.next, nil
}
