package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

// initialChargeSeq seeds the merchant uid counter for a new subscription.
const initialChargeSeq = 0

// Service defines the subscription lifecycle surface.
type Service interface {
	Subscribe(ctx context.Context, businessID string, input SubscribeInput) (*gateway.ChargeResult, error)
	ChangeSubscription(ctx context.Context, businessID string, input ChangeInput) (*models.BillingScheduleEntry, error)
	Activate(ctx context.Context, businessID string) error
	Pause(ctx context.Context, businessID string) error
	Resume(ctx context.Context, businessID string) error
	Refund(ctx context.Context, businessID, gatewayTxID string) error
}

// SubscribeInput captures the data required to start a subscription.
type SubscribeInput struct {
	BillingPlan enums.BillingPlan
	Amount      decimal.Decimal
	VAT         decimal.Decimal
	Name        string
}

// ChangeInput carries a plan or price change for the in-flight cycle.
type ChangeInput struct {
	BillingPlan enums.BillingPlan
	Amount      decimal.Decimal
}

type payer interface {
	Pay(ctx context.Context, intent payments.PayIntent) (*gateway.ChargeResult, error)
}

type activationCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo billing.Repository
	Submitter   payer
	Cache       activationCache
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo      billing.Repository
	submitter payer
	cache     activationCache
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (*service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Submitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment submitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.BillingRepo,
		submitter: params.Submitter,
		cache:     params.Cache,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Subscribe submits the initial charge for a new subscription. The cycle's
// merchant uid starts the business's charge counter at zero; the reconciler
// seeds the first recurring entry once the initial charge confirms.
func (s *service) Subscribe(ctx context.Context, businessID string, input SubscribeInput) (*gateway.ChargeResult, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	if !input.BillingPlan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown billing plan").
			WithDetails(map[string]any{"billing_plan": string(input.BillingPlan)})
	}
	if input.Amount.IsNegative() || input.VAT.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount and vat must not be negative")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	existing, err := s.repo.FindActiveEntry(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active schedule")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "business already has an active billing schedule").
			WithDetails(map[string]any{"merchant_uid": existing.MerchantUID})
	}

	merchantUID := fmt.Sprintf("%s_ch%d", businessID, initialChargeSeq)
	result, err := s.submitter.Pay(ctx, payments.PayIntent{
		BusinessID:      businessID,
		MerchantUID:     merchantUID,
		IntentType:      enums.PaymentIntentInitial,
		BillingPlan:     input.BillingPlan,
		Name:            input.Name,
		IntendedPayDate: s.now(),
		Amount:          input.Amount,
		VAT:             input.VAT,
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "subscription initial charge submitted")
	return result, nil
}

// ChangeSubscription swaps the plan and amount on the in-flight cycle. The
// entry's due date is kept; future cycles inherit the new cadence because the
// reconciler computes them from the entry's plan at confirmation time.
func (s *service) ChangeSubscription(ctx context.Context, businessID string, input ChangeInput) (*models.BillingScheduleEntry, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	if !input.BillingPlan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown billing plan").
			WithDetails(map[string]any{"billing_plan": string(input.BillingPlan)})
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	entry, err := s.repo.FindActiveEntry(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active schedule")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active billing schedule for business")
	}

	entry.BillingPlan = input.BillingPlan
	entry.Amount = input.Amount
	if err := s.repo.UpdateScheduleEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update schedule entry")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"merchant_uid": entry.MerchantUID,
		"billing_plan": string(entry.BillingPlan),
	})
	s.logg.Info(ctx, "subscription plan changed")
	return entry, nil
}

// Activate is the reconciler's hook for a confirmed initial charge. The
// durable truth lives in the schedule store; the cache flag only serves
// cheap "is this business subscribed" reads.
func (s *service) Activate(ctx context.Context, businessID string) error {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	if s.cache != nil {
		key := s.cache.CacheKey("subscription", businessID, "active")
		if err := s.cache.Set(ctx, key, "1", 0); err != nil {
			s.logg.Error(ctx, "cache subscription activation", err)
		}
	}
	s.logg.Info(ctx, "subscription activated")
	return nil
}

// Pause is declared for the lifecycle surface but not yet supported.
func (s *service) Pause(ctx context.Context, businessID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "subscription pause is not supported")
}

// Resume is declared for the lifecycle surface but not yet supported.
func (s *service) Resume(ctx context.Context, businessID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "subscription resume is not supported")
}

// Refund is declared for the lifecycle surface but not yet supported.
func (s *service) Refund(ctx context.Context, businessID, gatewayTxID string) error {
	return pkgerrors.New(pkgerrors.CodeNotImplemented, "refunds are not supported")
}
