package metrics

import (
	"time"

	"archival-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks archival job execution.
//
// Metrics:
//   - keeper_archive_jobs_total: finished jobs by entity type and status
//   - keeper_archive_job_duration_seconds: time from start to terminal state
//   - keeper_archive_jobs_in_flight: jobs currently packaging
//   - keeper_archive_records_archived_total: records in completed archives
//   - keeper_archive_bytes_stored_total: stored payload bytes
type JobMetrics struct {
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	recordsArchived *prometheus.CounterVec
	bytesStored     *prometheus.CounterVec
}

// NewJobMetrics creates and registers job metrics with the provided registry.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_total",
				Help:      "Total number of archival jobs that reached a terminal state",
			},
			[]string{"entity_type", "status"},
		),

		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Archival job duration in seconds",
				Buckets:   cfg.JobDurationBuckets,
			},
			[]string{"entity_type"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_in_flight",
				Help:      "Number of archival jobs currently packaging",
			},
		),

		recordsArchived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_archived_total",
				Help:      "Total number of live records written to archives",
			},
			[]string{"entity_type"},
		),

		bytesStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bytes_stored_total",
				Help:      "Total archive payload bytes written",
			},
			[]string{"entity_type"},
		),
	}

	registry.MustRegister(
		jm.jobsTotal,
		jm.jobDuration,
		jm.inFlight,
		jm.recordsArchived,
		jm.bytesStored,
	)

	return jm
}

// RecordJob records a finished job.
func (jm *JobMetrics) RecordJob(entityType, status string, duration time.Duration, records int, bytes int64) {
	jm.inFlight.Dec()
	jm.jobsTotal.WithLabelValues(entityType, status).Inc()
	jm.jobDuration.WithLabelValues(entityType).Observe(duration.Seconds())

	if records > 0 {
		jm.recordsArchived.WithLabelValues(entityType).Add(float64(records))
	}
	if bytes > 0 {
		jm.bytesStored.WithLabelValues(entityType).Add(float64(bytes))
	}
}
