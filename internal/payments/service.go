package payments

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

// Service submits billing intents to the payment gateway.
type Service interface {
	Pay(ctx context.Context, intent PayIntent) (*gateway.ChargeResult, error)
}

// PayIntent is one charge attempt against a business's default credential.
type PayIntent struct {
	BusinessID      string
	MerchantUID     string
	IntentType      enums.PaymentIntentType
	BillingPlan     enums.BillingPlan
	Name            string
	IntendedPayDate time.Time
	Amount          decimal.Decimal
	VAT             decimal.Decimal
}

type charger interface {
	Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error)
}

type confirmationEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, kind enums.OutboxTaskKind, payload any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the payment submitter.
type ServiceParams struct {
	BillingRepo       billing.Repository
	GatewayClient     charger
	Outbox            confirmationEnqueuer
	TransactionRunner txRunner
	Logger            *logger.Logger
	DefaultName       string
	Now               func() time.Time
}

type service struct {
	repo        billing.Repository
	gw          charger
	outbox      confirmationEnqueuer
	txRunner    txRunner
	logg        *logger.Logger
	defaultName string
	now         func() time.Time
}

// NewService constructs a payment submitter.
func NewService(params ServiceParams) (*service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.GatewayClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.BillingRepo,
		gw:          params.GatewayClient,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		defaultName: params.DefaultName,
		now:         now,
	}, nil
}

// Pay resolves the business's default credential, submits the charge with the
// full billing context embedded as metadata, and hands the gateway's result to
// reconciliation through the outbox. Exactly one confirmation task is queued
// per transport-successful call, whether the charge was approved or declined.
func (s *service) Pay(ctx context.Context, intent PayIntent) (*gateway.ChargeResult, error) {
	businessID := strings.TrimSpace(intent.BusinessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	merchantUID := strings.TrimSpace(intent.MerchantUID)
	if merchantUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant uid is required")
	}
	if !intent.IntentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown intent type")
	}
	if intent.Amount.IsNegative() || intent.VAT.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount and vat must not be negative")
	}

	ctx = s.logg.WithBusinessID(ctx, businessID)
	ctx = s.logg.WithMerchantUID(ctx, merchantUID)

	// Fast fail: no default credential means no gateway call at all.
	method, err := s.repo.FindDefaultPaymentMethod(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default payment method")
	}
	if method == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no default payment method for business")
	}

	name := strings.TrimSpace(intent.Name)
	if name == "" {
		name = s.defaultName
	}
	intendedAt := intent.IntendedPayDate
	if intendedAt.IsZero() {
		intendedAt = s.now()
	}

	meta := gateway.ChargeMetadata{
		BusinessID:  businessID,
		MerchantUID: merchantUID,
		CustomerUID: method.CustomerUID,
		Name:        name,
		IntentType:  intent.IntentType,
		BillingPlan: intent.BillingPlan,
		ScheduledAt: intendedAt,
		Amount:      intent.Amount,
		VAT:         intent.VAT,
	}

	result, err := s.gw.Charge(ctx, gateway.ChargeParams{
		MerchantUID:      merchantUID,
		CustomerUID:      method.CustomerUID,
		Name:             name,
		Amount:           intent.Amount,
		CancelableAmount: intent.Amount,
		VAT:              intent.VAT,
		Metadata:         meta,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway charge failed").
			WithDetails(map[string]any{
				"merchant_uid": merchantUID,
				"intent_type":  string(intent.IntentType),
				"amount":       intent.Amount.String(),
			})
	}

	// The transport call succeeded, so reconciliation owns this result from
	// here on. Queue it before inspecting the status.
	if err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Enqueue(ctx, tx, enums.OutboxTaskPaymentConfirmation, result)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue confirmation task")
	}

	if result.Status != gateway.StatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge declined").
			WithDetails(map[string]any{
				"merchant_uid": merchantUID,
				"fail_reason":  result.FailReason,
				"gateway_tx":   result.GatewayTxID,
				"business_id":  meta.BusinessID,
				"customer_uid": meta.CustomerUID,
				"name":         meta.Name,
				"intent_type":  string(meta.IntentType),
				"billing_plan": string(meta.BillingPlan),
				"scheduled_at": meta.ScheduledAt.Format(time.RFC3339),
				"amount":       meta.Amount.String(),
				"vat":          meta.VAT.String(),
			})
	}

	s.logg.Info(ctx, "charge submitted and approved")
	return result, nil
}
