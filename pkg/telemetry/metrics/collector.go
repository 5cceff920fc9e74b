package metrics

import (
	"fmt"
	"sync"
	"time"

	"archival-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// OtherLabel replaces entity types once the cardinality limit is reached.
const OtherLabel = "other"

// Collector owns every Prometheus metric the engine records.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	jobMetrics       *JobMetrics
	accessMetrics    *AccessMetrics
	retentionMetrics *RetentionMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with registry.
// If registry is nil a new one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.JobDurationBuckets) == 0 {
		cfg.JobDurationBuckets = append([]float64(nil), config.DefaultJobDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		jobMetrics:         NewJobMetrics(cfg, registry),
		accessMetrics:      NewAccessMetrics(cfg, registry),
		retentionMetrics:   NewRetentionMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

func (c *Collector) entityLabel(metric, entityType string) string {
	if c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", metric, entityType)) {
		return entityType
	}
	return OtherLabel
}

// JobStarted marks a job as packaging.
func (c *Collector) JobStarted() {
	if !c.enabled() {
		return
	}
	c.jobMetrics.inFlight.Inc()
}

// RecordJob records a finished job and decrements the in-flight gauge.
// Records and bytes are only counted for completed jobs.
//
// Example:
//
//	collector.RecordJob("samples", "completed", 2*time.Second, 12, 8192)
func (c *Collector) RecordJob(entityType, status string, duration time.Duration, records int, bytes int64) {
	if !c.enabled() {
		return
	}
	entityType = c.entityLabel("job", entityType)
	c.jobMetrics.RecordJob(entityType, status, duration, records, bytes)
}

// RecordRetrieval records a retrieval attempt by outcome ("ok",
// "rejected", "problem", "failed").
func (c *Collector) RecordRetrieval(outcome string) {
	if !c.enabled() {
		return
	}
	c.accessMetrics.retrievalsTotal.WithLabelValues(outcome).Inc()
}

// RecordVerification records a verification by result ("pass", "fail",
// "rejected", "error").
func (c *Collector) RecordVerification(result string) {
	if !c.enabled() {
		return
	}
	c.accessMetrics.verificationsTotal.WithLabelValues(result).Inc()
}

// RecordSweep records a retention sweep run in the given mode ("dry_run" or
// "live").
func (c *Collector) RecordSweep(mode string) {
	if !c.enabled() {
		return
	}
	c.retentionMetrics.sweepsTotal.WithLabelValues(mode).Inc()
}

// RecordDeletion records a retention deletion attempt.
func (c *Collector) RecordDeletion(entityType, outcome string) {
	if !c.enabled() {
		return
	}
	entityType = c.entityLabel("deletion", entityType)
	c.retentionMetrics.deletionsTotal.WithLabelValues(entityType, outcome).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter that admits at most maxCardinality
// label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or still fits under the
// limit, and tracks it if so.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
