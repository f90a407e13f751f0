package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/internal/billing"
	dbpkg "github.com/dkemp/subcycle-backend/pkg/db"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	dbtypes "github.com/dkemp/subcycle-backend/pkg/db/types"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/metrics"
)

// Service reconciles gateway charge confirmations into durable billing state.
type Service interface {
	Process(ctx context.Context, result gateway.ChargeResult) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// activator is the subscription activation hook fired on a paid INITIAL
// charge.
type activator interface {
	Activate(ctx context.Context, businessID string) error
}

// ServiceParams groups dependencies for the outcome reconciler.
type ServiceParams struct {
	BillingRepo       billing.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.BillingMetrics
	Activator         activator
	Location          *time.Location
	Now               func() time.Time
}

type service struct {
	repo      billing.Repository
	txRunner  txRunner
	logg      *logger.Logger
	metrics   *metrics.BillingMetrics
	activator activator
	loc       *time.Location
	now       func() time.Time
}

// NewService constructs an outcome reconciler.
func NewService(params ServiceParams) (*service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.BillingRepo,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
		metrics:   params.Metrics,
		activator: params.Activator,
		loc:       loc,
		now:       now,
	}, nil
}

// Process runs the confirmation state machine. Each invocation is independent
// and keyed by the gateway transaction id, so replaying the same confirmation
// is a no-op.
func (s *service) Process(ctx context.Context, result gateway.ChargeResult) error {
	ctx = s.logg.WithMerchantUID(ctx, result.MerchantUID)
	ctx = s.logg.WithField(ctx, "gateway_tx_id", result.GatewayTxID)

	s.metrics.IncChargeOutcome(string(result.Status))

	switch result.Status {
	case gateway.StatusPaid:
		return s.handlePaid(ctx, result)
	case gateway.StatusFailed:
		return s.handleFailed(ctx, result)
	case gateway.StatusCancelled:
		// Acknowledged only. Cancellation does not map onto schedule state.
		s.logg.Warn(ctx, "cancelled confirmation acknowledged without reconciliation")
		return nil
	default:
		s.logg.Warn(s.logg.WithField(ctx, "status", string(result.Status)), "unrecognized confirmation status ignored")
		return nil
	}
}

func (s *service) handlePaid(ctx context.Context, result gateway.ChargeResult) error {
	meta, err := gateway.DecodeMetadata(result.CustomData)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode confirmation metadata")
	}
	ctx = s.logg.WithBusinessID(ctx, meta.BusinessID)

	nextUID, err := nextMerchantUID(meta.MerchantUID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "derive next merchant uid")
	}
	if !meta.BillingPlan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown billing plan %q in confirmation", meta.BillingPlan))
	}
	nextSchedule := localMidnight(meta.ScheduledAt.AddDate(0, 0, meta.BillingPlan.CadenceWeeks()*7), s.loc)

	var replay bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The unique gateway tx id makes the whole reconciliation
		// idempotent: a replayed confirmation aborts here before touching
		// schedule state.
		if err := repo.CreateTransaction(ctx, s.buildTransaction(result, meta)); err != nil {
			if dbpkg.IsUniqueViolation(err, "gateway_tx_id") {
				replay = true
				return nil
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		if meta.IntentType == enums.PaymentIntentScheduled {
			entry, err := repo.FindEntryByMerchantUID(ctx, meta.MerchantUID)
			if err != nil {
				return fmt.Errorf("load schedule entry: %w", err)
			}
			if entry == nil {
				return fmt.Errorf("no schedule entry for merchant uid %s", meta.MerchantUID)
			}
			if !entry.Status.CanTransitionTo(enums.PaymentStatusPaid) {
				return fmt.Errorf("entry %s cannot move from %s to PAID", meta.MerchantUID, entry.Status)
			}
			entry.Status = enums.PaymentStatusPaid
			if err := repo.UpdateScheduleEntry(ctx, entry); err != nil {
				return fmt.Errorf("mark entry paid: %w", err)
			}
		}

		next := &models.BillingScheduleEntry{
			MerchantUID: nextUID,
			BusinessID:  meta.BusinessID,
			Schedule:    nextSchedule,
			Amount:      meta.Amount,
			VAT:         meta.VAT,
			BillingPlan: meta.BillingPlan,
			Status:      enums.PaymentStatusPending,
		}
		if err := repo.CreateScheduleEntry(ctx, next); err != nil {
			return fmt.Errorf("insert next cycle entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile paid confirmation")
	}
	if replay {
		s.logg.Info(ctx, "confirmation already reconciled, skipping")
		return nil
	}

	// Activation is a collaborator hook outside the billing transaction;
	// its failure must not unwind committed billing state.
	if meta.IntentType == enums.PaymentIntentInitial && s.activator != nil {
		if err := s.activator.Activate(ctx, meta.BusinessID); err != nil {
			s.logg.Error(ctx, "subscription activation hook failed", err)
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"next_merchant_uid": nextUID,
		"next_schedule":     nextSchedule.Format(time.RFC3339),
	}), "paid confirmation reconciled")
	return nil
}

func (s *service) handleFailed(ctx context.Context, result gateway.ChargeResult) error {
	meta, err := gateway.DecodeMetadata(result.CustomData)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode confirmation metadata")
	}
	ctx = s.logg.WithBusinessID(ctx, meta.BusinessID)

	// Only scheduled intents carry schedule state to mutate. A declined
	// INITIAL charge simply never created a cycle.
	if meta.IntentType != enums.PaymentIntentScheduled {
		s.logg.Warn(s.logg.WithField(ctx, "intent_type", string(meta.IntentType)), "failed confirmation for non-scheduled intent, nothing to reconcile")
		return nil
	}

	failedAt := result.PaidAt()
	if failedAt.IsZero() {
		failedAt = s.now()
	}
	record := dbtypes.FailureRecord{
		GatewayTxID: result.GatewayTxID,
		Params: dbtypes.SubmittedCharge{
			MerchantUID: meta.MerchantUID,
			CustomerUID: meta.CustomerUID,
			Name:        meta.Name,
			Amount:      meta.Amount,
			VAT:         meta.VAT,
		},
		Reason:   result.FailReason,
		FailedAt: failedAt,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entry, err := repo.FindEntryByMerchantUID(ctx, meta.MerchantUID)
		if err != nil {
			return fmt.Errorf("load schedule entry: %w", err)
		}
		if entry == nil {
			return fmt.Errorf("no schedule entry for merchant uid %s", meta.MerchantUID)
		}
		for _, existing := range entry.Failures {
			if existing.GatewayTxID == result.GatewayTxID {
				s.logg.Info(ctx, "failure already recorded, skipping")
				return nil
			}
		}
		entry.Status = enums.PaymentStatusFailed
		entry.Failures = entry.Failures.Prepend(record)
		if err := repo.UpdateScheduleEntry(ctx, entry); err != nil {
			return fmt.Errorf("record failure: %w", err)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile failed confirmation")
	}

	s.logg.Info(s.logg.WithField(ctx, "fail_reason", result.FailReason), "failed confirmation reconciled")
	return nil
}

func (s *service) buildTransaction(result gateway.ChargeResult, meta *gateway.ChargeMetadata) *models.PaymentTransaction {
	tx := &models.PaymentTransaction{
		BusinessID:  meta.BusinessID,
		GatewayTxID: result.GatewayTxID,
		MerchantUID: meta.MerchantUID,
		IntentType:  meta.IntentType,
		Name:        meta.Name,
		Currency:    result.Currency,
		Amount:      meta.Amount,
		VAT:         meta.VAT,
		CustomerUID: meta.CustomerUID,
		Status:      enums.PaymentStatusPaid,
		ScheduledAt: meta.ScheduledAt,
	}
	if result.PayMethod != "" {
		tx.PayMethod = &result.PayMethod
	}
	if result.ReceiptURL != "" {
		tx.ReceiptURL = &result.ReceiptURL
	}
	if paidAt := result.PaidAt(); !paidAt.IsZero() {
		tx.PaidAt = &paidAt
	}
	return tx
}

// nextMerchantUID increments the numeric suffix: "B1_ch3" becomes "B1_ch4".
func nextMerchantUID(current string) (string, error) {
	idx := strings.LastIndex(current, "_ch")
	if idx < 0 {
		return "", fmt.Errorf("merchant uid %q has no _ch suffix", current)
	}
	prefix, digits := current[:idx], current[idx+len("_ch"):]
	seq, err := strconv.Atoi(digits)
	if err != nil {
		return "", fmt.Errorf("merchant uid %q has non-numeric sequence: %w", current, err)
	}
	return fmt.Sprintf("%s_ch%d", prefix, seq+1), nil
}

func localMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
