// Package metrics owns the process-wide Prometheus registry. Module metrics
// register against it through promauto.With.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level metrics and the registry module metrics share.
type Metrics struct {
	Registry  *prometheus.Registry
	BuildInfo *prometheus.GaugeVec
}

// New creates a registry with Go runtime and process collectors and an
// oncocentre_build_info gauge set to 1 for version.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		Registry: reg,
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "oncocentre_build_info",
			Help: "Build information, always 1",
		}, []string{"version"}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}
