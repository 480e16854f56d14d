package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for protected-record operations.
type Metrics struct {
	RecordsCreated      prometheus.Counter
	RecordsUnreadable   prometheus.Counter
	IdentifierConflicts prometheus.Counter
	AccessDenied        *prometheus.CounterVec
	CreateDuration      prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_records_created_total",
			Help: "Protected records created",
		}),
		RecordsUnreadable: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_records_unreadable_total",
			Help: "Stored records that failed to decrypt when read",
		}),
		IdentifierConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_identifier_conflicts_total",
			Help: "Identifier issuance attempts that lost a uniqueness race and were retried",
		}),
		AccessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oncocentre_record_access_denied_total",
			Help: "Record operations refused by role policy",
		}, []string{"action"}),
		CreateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oncocentre_record_create_duration_seconds",
			Help:    "Duration of record creation including encryption and identifier issuance",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.RecordsCreated.Inc()
}

func (m *Metrics) IncrementUnreadable() {
	m.RecordsUnreadable.Inc()
}

func (m *Metrics) IncrementIdentifierConflict() {
	m.IdentifierConflicts.Inc()
}

func (m *Metrics) IncrementAccessDenied(action string) {
	m.AccessDenied.WithLabelValues(action).Inc()
}

// ObserveCreate records the duration of a record creation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
