package metrics

import (
	"archival-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics tracks reads of archived data.
//
// Metrics:
//   - keeper_archive_retrievals_total: retrievals by outcome
//   - keeper_archive_verifications_total: verifications by result
type AccessMetrics struct {
	retrievalsTotal    *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
}

// NewAccessMetrics creates and registers access metrics with the provided
// registry.
func NewAccessMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AccessMetrics {
	am := &AccessMetrics{
		retrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retrievals_total",
				Help:      "Total number of archive retrievals by outcome",
			},
			[]string{"outcome"},
		),

		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "verifications_total",
				Help:      "Total number of integrity verifications by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(am.retrievalsTotal, am.verificationsTotal)

	return am
}
