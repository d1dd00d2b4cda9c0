package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics tracks document writes and schedule reconciliation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DocumentWrites      *prometheus.CounterVec
	WriteDuration       *prometheus.HistogramVec
	Reconciliations     *prometheus.CounterVec
	OccurrenceChanges   *prometheus.CounterVec
	ReconcileDuration   prometheus.Histogram
	MaintainedSchedules prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_document_writes_total",
			Help: "Document revision writes by operation and outcome",
		}, []string{"operation", "outcome"}),
		WriteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scope_document_write_duration_seconds",
			Help:    "Duration of document writes including the current-revision read",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_reconciliations_total",
			Help: "Schedule reconciliations by occurrence type and outcome",
		}, []string{"type", "outcome"}),
		OccurrenceChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_occurrence_changes_total",
			Help: "Occurrences kept, deleted or created by reconciliation",
		}, []string{"type", "action"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scope_reconcile_duration_seconds",
			Help:    "Duration of one schedule reconciliation",
			Buckets: durationBuckets,
		}),
		MaintainedSchedules: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_maintained_schedules_total",
			Help: "Schedules re-reconciled by maintenance runs",
		}),
	}
}

// ObserveWrite records one write. Call with time.Now() taken before the write.
func (m *Metrics) ObserveWrite(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.DocumentWrites.WithLabelValues(operation, outcome).Inc()
	m.WriteDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveReconcile records a finished reconciliation and its occurrence counts.
func (m *Metrics) ObserveReconcile(occurrenceType, outcome string, kept, deleted, created int, start time.Time) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(occurrenceType, outcome).Inc()
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
	m.OccurrenceChanges.WithLabelValues(occurrenceType, "kept").Add(float64(kept))
	m.OccurrenceChanges.WithLabelValues(occurrenceType, "deleted").Add(float64(deleted))
	m.OccurrenceChanges.WithLabelValues(occurrenceType, "created").Add(float64(created))
}

func (m *Metrics) IncrementMaintained(n int) {
	if m == nil {
		return
	}
	m.MaintainedSchedules.Add(float64(n))
}
