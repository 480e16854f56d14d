package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for authentication and identity lifecycle.
type Metrics struct {
	LoginAttempts        *prometheus.CounterVec
	WhitelistDenials     prometheus.Counter
	DirectoryDuration    prometheus.Histogram
	DirectoryUnavailable prometheus.Counter
	IdentityProvisioned  prometheus.Counter
	IdentityPromoted     prometheus.Counter
	LoginDuration        prometheus.Histogram
	Lockouts             prometheus.Counter
}

// New registers the auth metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oncocentre_login_attempts_total",
			Help: "Login attempts by requested method, resolving source and outcome",
		}, []string{"method", "source", "outcome"}),
		WhitelistDenials: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_whitelist_denials_total",
			Help: "Logins refused before authentication because the username is not whitelisted",
		}),
		DirectoryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oncocentre_directory_auth_duration_seconds",
			Help:    "Duration of directory authentication including every bind strategy",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DirectoryUnavailable: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_directory_unavailable_total",
			Help: "Directory authentications that could not reach a usable directory",
		}),
		IdentityProvisioned: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_identities_provisioned_total",
			Help: "Identities created automatically on first directory login",
		}),
		IdentityPromoted: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_identities_promoted_total",
			Help: "Local identities handed over to the directory",
		}),
		LoginDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oncocentre_login_duration_seconds",
			Help:    "Duration of the full login pipeline",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "oncocentre_login_lockouts_total",
			Help: "Usernames locked after repeated failed logins",
		}),
	}
}

// IncrementLogin records a login outcome ("success" or an error code).
func (m *Metrics) IncrementLogin(method, source, outcome string) {
	m.LoginAttempts.WithLabelValues(method, source, outcome).Inc()
}

func (m *Metrics) IncrementWhitelistDenial() {
	m.WhitelistDenials.Inc()
}

// ObserveDirectory records the duration of a directory authentication.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDirectory(start time.Time) {
	m.DirectoryDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDirectoryUnavailable() {
	m.DirectoryUnavailable.Inc()
}

func (m *Metrics) IncrementProvisioned() {
	m.IdentityProvisioned.Inc()
}

func (m *Metrics) IncrementLockout() {
	m.Lockouts.Inc()
}

func (m *Metrics) IncrementPromoted() {
	m.IdentityPromoted.Inc()
}

// ObserveLogin records the duration of a login.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLogin(start time.Time) {
	m.LoginDuration.Observe(time.Since(start).Seconds())
}
