package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records the daily scan, charge outcomes, and outbox drain.
type BillingMetrics struct {
	scanDuration     *prometheus.HistogramVec
	entriesProcessed *prometheus.CounterVec
	chargeOutcomes   *prometheus.CounterVec
	outboxAttempts   *prometheus.CounterVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
// A nil registerer yields a no-op instance so tests and one-off commands can
// skip wiring prometheus.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	scanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_scan_duration_seconds",
		Help:    "Duration of daily billing scans in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	entriesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_entries_processed",
		Help: "Schedule entries picked up by the daily scan, by result.",
	}, []string{"result"})
	chargeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charge_outcomes",
		Help: "Reconciled gateway charge outcomes, by status.",
	}, []string{"status"})
	outboxAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_outbox_attempts",
		Help: "Outbox task delivery attempts, by result.",
	}, []string{"result"})
	reg.MustRegister(scanDuration, entriesProcessed, chargeOutcomes, outboxAttempts)
	return &BillingMetrics{
		scanDuration:     scanDuration,
		entriesProcessed: entriesProcessed,
		chargeOutcomes:   chargeOutcomes,
		outboxAttempts:   outboxAttempts,
	}
}

// ObserveScanDuration records how long the named scan took.
func (b *BillingMetrics) ObserveScanDuration(job string, duration time.Duration) {
	if b == nil || b.scanDuration == nil {
		return
	}
	b.scanDuration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncEntryProcessed counts one scanned schedule entry with its result.
func (b *BillingMetrics) IncEntryProcessed(result string) {
	if b == nil || b.entriesProcessed == nil {
		return
	}
	b.entriesProcessed.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncChargeOutcome counts one reconciled charge by gateway status.
func (b *BillingMetrics) IncChargeOutcome(status string) {
	if b == nil || b.chargeOutcomes == nil {
		return
	}
	b.chargeOutcomes.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncOutboxAttempt counts one outbox delivery attempt with its result.
func (b *BillingMetrics) IncOutboxAttempt(result string) {
	if b == nil || b.outboxAttempts == nil {
		return
	}
	b.outboxAttempts.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
