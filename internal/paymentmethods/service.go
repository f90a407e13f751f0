package paymentmethods

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

// Service manages vaulted payment credentials for a business.
type Service interface {
	Register(ctx context.Context, businessID string, input RegisterInput) (*models.PaymentMethod, error)
	List(ctx context.Context, businessID string) ([]models.PaymentMethod, error)
	Delete(ctx context.Context, businessID string, methodID uuid.UUID) error
	SetDefault(ctx context.Context, businessID, customerUID string) (*models.PaymentMethod, error)
}

// RegisterInput captures the payload required to vault a card.
type RegisterInput struct {
	CustomerUID string
	CardToken   string
	IsDefault   bool
}

type keyVault interface {
	IssueBillingKey(ctx context.Context, params gateway.IssueBillingKeyParams) (*gateway.BillingKey, error)
	DeleteBillingKey(ctx context.Context, customerUID string) error
}

type payer interface {
	Pay(ctx context.Context, intent payments.PayIntent) (*gateway.ChargeResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the payment method service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	GatewayClient     keyVault
	Submitter         payer
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo      billing.Repository
	gw        keyVault
	submitter payer
	txRunner  txRunner
	logg      *logger.Logger
	now       func() time.Time
}

// NewService constructs a payment method service.
func NewService(params ServiceParams) (*service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.GatewayClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Submitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment submitter required")
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
		repo:      params.BillingRepo,
		gw:        params.GatewayClient,
		submitter: params.Submitter,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Register exchanges a one-time card token for a gateway billing key and
// persists it. The business's first credential becomes the default.
func (s *service) Register(ctx context.Context, businessID string, input RegisterInput) (*models.PaymentMethod, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	customerUID := strings.TrimSpace(input.CustomerUID)
	if customerUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer uid is required")
	}
	cardToken := strings.TrimSpace(input.CardToken)
	if cardToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card token is required")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	key, err := s.gw.IssueBillingKey(ctx, gateway.IssueBillingKeyParams{
		CustomerUID: customerUID,
		CardToken:   cardToken,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue billing key")
	}
	if key == nil || strings.TrimSpace(key.CustomerUID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway billing key missing customer uid")
	}

	existing, err := s.repo.ListPaymentMethods(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	shouldDefault := len(existing) == 0 || input.IsDefault

	method := &models.PaymentMethod{
		BusinessID:  businessID,
		CustomerUID: key.CustomerUID,
		CardBrand:   key.CardBrand,
		CardLast4:   key.CardLast4,
		IsDefault:   shouldDefault,
	}

	if err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if shouldDefault && len(existing) > 0 {
			if err := txRepo.ClearDefaultPaymentMethod(ctx, businessID); err != nil {
				return err
			}
		}
		return txRepo.CreatePaymentMethod(ctx, method)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment method")
	}

	s.logg.Info(ctx, "payment method registered")
	return method, nil
}

// List returns the business's vaulted credentials, newest first.
func (s *service) List(ctx context.Context, businessID string) ([]models.PaymentMethod, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	methods, err := s.repo.ListPaymentMethods(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	return methods, nil
}

// Delete removes the credential from the gateway vault and the store.
func (s *service) Delete(ctx context.Context, businessID string, methodID uuid.UUID) error {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	if methodID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "method id is required")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	method, err := s.repo.FindPaymentMethodByID(ctx, methodID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}
	if method == nil || method.BusinessID != businessID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}

	if err := s.gw.DeleteBillingKey(ctx, method.CustomerUID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete billing key")
	}
	if err := s.repo.DeletePaymentMethod(ctx, methodID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment method")
	}

	s.logg.Info(ctx, "payment method deleted")
	return nil
}

// SetDefault swaps the business's default credential in a single transaction,
// then retries any outstanding failed billing cycle with the new credential.
// The retry outcome is not surfaced to the caller.
func (s *service) SetDefault(ctx context.Context, businessID, customerUID string) (*models.PaymentMethod, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	customerUID = strings.TrimSpace(customerUID)
	if customerUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer uid is required")
	}
	ctx = s.logg.WithBusinessID(ctx, businessID)

	var target *models.PaymentMethod
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		methods, err := txRepo.ListPaymentMethods(ctx, businessID)
		if err != nil {
			return err
		}
		for i := range methods {
			if methods[i].CustomerUID == customerUID {
				target = &methods[i]
				break
			}
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
		}
		if err := txRepo.ClearDefaultPaymentMethod(ctx, businessID); err != nil {
			return err
		}
		return txRepo.MarkPaymentMethodDefault(ctx, target.ID)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "swap default payment method")
	}
	target.IsDefault = true
	s.logg.Info(ctx, "default payment method updated")

	s.retryFailedCycle(ctx, businessID)
	return target, nil
}

// retryFailedCycle resubmits the business's outstanding FAILED entry with
// today's date. This is the only retry path for declined recurring charges.
func (s *service) retryFailedCycle(ctx context.Context, businessID string) {
	entry, err := s.repo.FindActiveEntry(ctx, businessID)
	if err != nil {
		s.logg.Error(ctx, "load active entry for retry", err)
		return
	}
	if entry == nil || entry.Status != enums.PaymentStatusFailed {
		return
	}

	retryCtx := s.logg.WithMerchantUID(context.WithoutCancel(ctx), entry.MerchantUID)
	go func() {
		if _, err := s.submitter.Pay(retryCtx, payments.PayIntent{
			BusinessID:      businessID,
			MerchantUID:     entry.MerchantUID,
			IntentType:      enums.PaymentIntentScheduled,
			BillingPlan:     entry.BillingPlan,
			IntendedPayDate: s.now(),
			Amount:          entry.Amount,
			VAT:             entry.VAT,
		}); err != nil {
			s.logg.Error(retryCtx, "failed cycle retry declined", err)
			return
		}
		s.logg.Info(retryCtx, "failed cycle retried with new default method")
	}()
}
