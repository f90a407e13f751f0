package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

func newTestScheduler(t *testing.T, lister *stubLister, submitter *stubPayer, lock Lock, now time.Time) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc, err := NewService(ServiceParams{
		BillingRepo: lister,
		Submitter:   submitter,
		Lock:        lock,
		Logger:      logger.New(logger.Options{ServiceName: "scheduler-test"}),
		Location:    loc,
		ScanHour:    6,
		Now:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}
	return svc
}

func dueEntry(merchantUID string) models.BillingScheduleEntry {
	return models.BillingScheduleEntry{
		MerchantUID: merchantUID,
		BusinessID:  "B1",
		Schedule:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		BillingPlan: enums.BillingPlan4Week,
		Amount:      decimal.NewFromInt(45000),
		VAT:         decimal.NewFromInt(4500),
		Status:      enums.PaymentStatusPending,
	}
}

func TestScanSubmitsEveryDueEntry(t *testing.T) {
	lister := &stubLister{entries: []models.BillingScheduleEntry{
		dueEntry("B1_ch1"),
		dueEntry("B2_ch4"),
		dueEntry("B3_ch9"),
	}}
	submitter := &stubPayer{}
	svc := newTestScheduler(t, lister, submitter, &stubLock{acquired: true}, time.Now())

	report, err := svc.ScanAndProcess(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Due != 3 || report.Submitted != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := submitter.merchantUIDs(); len(got) != 3 {
		t.Fatalf("expected 3 submissions, got %v", got)
	}
	for _, intent := range submitter.all() {
		if intent.IntentType != enums.PaymentIntentScheduled {
			t.Fatalf("scan must submit scheduled intents, got %s", intent.IntentType)
		}
	}
}

func TestScanIsolatesPerEntryFailures(t *testing.T) {
	lister := &stubLister{entries: []models.BillingScheduleEntry{
		dueEntry("B1_ch1"),
		dueEntry("B2_ch4"),
		dueEntry("B3_ch9"),
	}}
	submitter := &stubPayer{failUIDs: map[string]bool{"B2_ch4": true}}
	svc := newTestScheduler(t, lister, submitter, &stubLock{acquired: true}, time.Now())

	report, err := svc.ScanAndProcess(context.Background())
	if err == nil {
		t.Fatal("expected aggregated submission error")
	}
	if report.Due != 3 || report.Submitted != 2 || report.Failed != 1 {
		t.Fatalf("one decline must not block the others: %+v", report)
	}
	if got := submitter.merchantUIDs(); len(got) != 3 {
		t.Fatalf("all entries must be attempted, got %v", got)
	}
}

func TestScanUsesStartOfLocalDayAsCutoff(t *testing.T) {
	lister := &stubLister{}
	// 2026-03-01 23:30 UTC is already 2026-03-02 08:30 in Seoul.
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	svc := newTestScheduler(t, lister, &stubPayer{}, &stubLock{acquired: true}, now)

	if _, err := svc.ScanAndProcess(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loc, _ := time.LoadLocation("Asia/Seoul")
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	if !lister.lastDueBy.Equal(want) {
		t.Fatalf("cutoff must be local midnight, got %s want %s", lister.lastDueBy, want)
	}
}

func TestUntilNextScan(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	svc := newTestScheduler(t, &stubLister{}, &stubPayer{}, &stubLock{}, time.Now())

	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{
			"before the scan hour",
			time.Date(2026, 3, 1, 4, 30, 0, 0, loc),
			90 * time.Minute,
		},
		{
			"after the scan hour rolls to tomorrow",
			time.Date(2026, 3, 1, 7, 0, 0, 0, loc),
			23 * time.Hour,
		},
		{
			"exactly at the scan hour waits a full day",
			time.Date(2026, 3, 1, 6, 0, 0, 0, loc),
			24 * time.Hour,
		},
	}
	for _, tc := range cases {
		if got := svc.untilNextScan(tc.now); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestRunLockedSkipsWhenLockHeldElsewhere(t *testing.T) {
	lister := &stubLister{entries: []models.BillingScheduleEntry{dueEntry("B1_ch1")}}
	submitter := &stubPayer{}
	lock := &stubLock{acquired: false}
	svc := newTestScheduler(t, lister, submitter, lock, time.Now())

	svc.runLocked(context.Background())
	if len(submitter.merchantUIDs()) != 0 {
		t.Fatal("a held lock must skip the scan entirely")
	}
	if lock.releases != 0 {
		t.Fatal("never release a lock this instance does not own")
	}
}

func TestRunLockedReleasesAfterScan(t *testing.T) {
	lock := &stubLock{acquired: true}
	svc := newTestScheduler(t, &stubLister{}, &stubPayer{}, lock, time.Now())

	svc.runLocked(context.Background())
	if lock.releases != 1 {
		t.Fatalf("expected one release, got %d", lock.releases)
	}
}

type stubLister struct {
	entries   []models.BillingScheduleEntry
	err       error
	lastDueBy time.Time
}

func (s *stubLister) ListDueEntries(ctx context.Context, dueBy time.Time, limit int) ([]models.BillingScheduleEntry, error) {
	s.lastDueBy = dueBy
	return s.entries, s.err
}

type stubPayer struct {
	mu       sync.Mutex
	intents  []payments.PayIntent
	failUIDs map[string]bool
}

func (s *stubPayer) Pay(ctx context.Context, intent payments.PayIntent) (*gateway.ChargeResult, error) {
	s.mu.Lock()
	s.intents = append(s.intents, intent)
	s.mu.Unlock()
	if s.failUIDs[intent.MerchantUID] {
		return nil, errors.New("charge declined")
	}
	return &gateway.ChargeResult{Status: gateway.StatusPaid}, nil
}

func (s *stubPayer) merchantUIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uids := make([]string, 0, len(s.intents))
	for _, intent := range s.intents {
		uids = append(uids, intent.MerchantUID)
	}
	return uids
}

func (s *stubPayer) all() []payments.PayIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payments.PayIntent(nil), s.intents...)
}

type stubLock struct {
	acquired bool
	releases int
}

func (s *stubLock) Acquire(ctx context.Context) (bool, error) { return s.acquired, nil }

func (s *stubLock) Release(ctx context.Context) error {
	s.releases++
	return nil
}
