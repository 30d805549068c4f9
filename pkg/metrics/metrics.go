package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	5, 10, 25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Processor round trips (500ms - 5s) ---
	750, 1000, 1500, 2000, 3000, 5000,

	// --- Timeouts and retried calls (5s - 60s) ---
	10000, 20000, 30000, 60000,
}

const subsystem = "billing"

// Recorder holds the business metrics of the reconciliation engine.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	webhookEvents *prometheus.CounterVec
	backfilled    *prometheus.CounterVec
	recorded      *prometheus.CounterVec
	processDur    *prometheus.HistogramVec
}

// NewRecorder registers the metrics on reg. Collectors already registered by an
// earlier Recorder are reused.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Recorder{
		webhookEvents: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "webhook_events_total",
			Help:      "Processor webhook events by type and outcome.",
		}, []string{"type", "outcome"})),
		backfilled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "sweep_backfilled_total",
			Help:      "Payment records created by the reconciliation sweeper.",
		}, []string{"trigger"})),
		recorded: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "payment_records_total",
			Help:      "Payment recorder results by status and effect.",
		}, []string{"status", "effect"})),
		processDur: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "bp_dur",
			Help:      "process latency in milliseconds",
			Buckets:   HistogramBuckets,
		}, []string{"type", "subtype"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Recorder) WebhookEvent(eventType, outcome string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (r *Recorder) Backfilled(trigger string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.backfilled.WithLabelValues(trigger).Add(float64(n))
}

func (r *Recorder) PaymentRecorded(status, effect string) {
	if r == nil {
		return
	}
	r.recorded.WithLabelValues(status, effect).Inc()
}

// ObserveSince records the milliseconds elapsed since start.
func (r *Recorder) ObserveSince(typ, subtype string, start time.Time) {
	if r == nil {
		return
	}
	r.processDur.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

// MillisecondsSince returns the float milliseconds elapsed since t.
func MillisecondsSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)
