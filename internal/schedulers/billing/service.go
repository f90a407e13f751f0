package billing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/metrics"
)

const (
	scanJobName        = "daily-billing"
	defaultScanHour    = 6
	defaultScanLimit   = 500
	defaultConcurrency = 8
)

type entryLister interface {
	ListDueEntries(ctx context.Context, dueBy time.Time, limit int) ([]models.BillingScheduleEntry, error)
}

type payer interface {
	Pay(ctx context.Context, intent payments.PayIntent) (*gateway.ChargeResult, error)
}

// ServiceParams configure the daily billing scheduler.
type ServiceParams struct {
	BillingRepo entryLister
	Submitter   payer
	Lock        Lock
	Logger      *logger.Logger
	Metrics     *metrics.BillingMetrics
	Location    *time.Location
	ScanHour    int
	ScanLimit   int
	Concurrency int
	Now         func() time.Time
}

// Service fires a billing scan at a fixed local hour every day.
type Service struct {
	repo        entryLister
	submitter   payer
	lock        Lock
	logg        *logger.Logger
	metrics     *metrics.BillingMetrics
	loc         *time.Location
	scanHour    int
	scanLimit   int
	concurrency int
	now         func() time.Time
}

// ScanReport summarizes one scan cycle.
type ScanReport struct {
	Due       int
	Submitted int
	Failed    int
}

// NewService builds the daily billing scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Submitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment submitter required")
	}
	if params.Lock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scan lock required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	scanHour := params.ScanHour
	if scanHour <= 0 || scanHour > 23 {
		scanHour = defaultScanHour
	}
	scanLimit := params.ScanLimit
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.BillingRepo,
		submitter:   params.Submitter,
		lock:        params.Lock,
		logg:        params.Logger,
		metrics:     params.Metrics,
		loc:         loc,
		scanHour:    scanHour,
		scanLimit:   scanLimit,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// Run arms a one-shot timer for the next local scan hour, fires the scan, and
// re-arms. Recomputing the delay from the wall clock on every cycle keeps the
// scheduler drift-free and restart-safe without persisted timer state.
func (s *Service) Run(ctx context.Context) error {
	for {
		delay := s.untilNextScan(s.now())
		armedCtx := s.logg.WithField(ctx, "next_scan_in", delay.String())
		s.logg.Info(armedCtx, "billing scan armed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "billing scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		s.runLocked(ctx)
	}
}

// runLocked takes the distributed lock so only one worker instance scans.
func (s *Service) runLocked(ctx context.Context) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "acquire billing scan lock", err)
		return
	}
	if !acquired {
		s.logg.Info(ctx, "another instance holds the billing scan lock; skipping")
		return
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "release billing scan lock", relErr)
		}
	}()

	if _, err := s.ScanAndProcess(ctx); err != nil {
		s.logg.Error(ctx, "billing scan finished with errors", err)
	}
}

// ScanAndProcess charges every pending entry due by the start of today. Each
// entry is submitted concurrently and resolved independently; a declined or
// erroring charge never aborts the rest of the scan. The gateway confirmation
// path owns all schedule mutation, so a scan only submits.
func (s *Service) ScanAndProcess(ctx context.Context) (ScanReport, error) {
	start := s.now()
	dueBy := startOfDay(start.In(s.loc))

	entries, err := s.repo.ListDueEntries(ctx, dueBy, s.scanLimit)
	if err != nil {
		return ScanReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due entries")
	}

	var submitted, failed atomic.Int64
	var errMu sync.Mutex
	var errs []error
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i := range entries {
		entry := entries[i]
		group.Go(func() error {
			if err := s.submitEntry(groupCtx, entry); err != nil {
				failed.Add(1)
				s.metrics.IncEntryProcessed("failed")
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				return nil
			}
			submitted.Add(1)
			s.metrics.IncEntryProcessed("submitted")
			return nil
		})
	}
	_ = group.Wait()

	report := ScanReport{
		Due:       len(entries),
		Submitted: int(submitted.Load()),
		Failed:    int(failed.Load()),
	}
	s.metrics.ObserveScanDuration(scanJobName, s.now().Sub(start))
	aggCtx := s.logg.WithFields(ctx, map[string]any{
		"due":       report.Due,
		"submitted": report.Submitted,
		"failed":    report.Failed,
	})
	s.logg.Info(aggCtx, "billing scan complete")
	return report, multierr.Combine(errs...)
}

func (s *Service) submitEntry(ctx context.Context, entry models.BillingScheduleEntry) error {
	ctx = s.logg.WithBusinessID(ctx, entry.BusinessID)
	ctx = s.logg.WithMerchantUID(ctx, entry.MerchantUID)

	_, err := s.submitter.Pay(ctx, payments.PayIntent{
		BusinessID:      entry.BusinessID,
		MerchantUID:     entry.MerchantUID,
		IntentType:      enums.PaymentIntentScheduled,
		BillingPlan:     entry.BillingPlan,
		IntendedPayDate: entry.Schedule,
		Amount:          entry.Amount,
		VAT:             entry.VAT,
	})
	if err != nil {
		s.logg.Error(ctx, "scheduled charge submission failed", err)
		return err
	}
	return nil
}

// untilNextScan returns the wall-clock delay until the next occurrence of the
// scan hour in the billing timezone.
func (s *Service) untilNextScan(now time.Time) time.Duration {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.scanHour, 0, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
