package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"archival-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:            true,
		Namespace:          "test",
		Subsystem:          "archive",
		JobDurationBuckets: []float64{0.1, 1, 10},
	}
}

func TestCollector_RecordJob(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.JobStarted()
	collector.JobStarted()
	collector.RecordJob("samples", "completed", 2*time.Second, 12, 4096)

	if got := testutil.ToFloat64(collector.jobMetrics.inFlight); got != 1 {
		t.Errorf("jobs_in_flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.jobMetrics.jobsTotal.WithLabelValues("samples", "completed")); got != 1 {
		t.Errorf("jobs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.jobMetrics.recordsArchived.WithLabelValues("samples")); got != 12 {
		t.Errorf("records_archived_total = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.jobMetrics.bytesStored.WithLabelValues("samples")); got != 4096 {
		t.Errorf("bytes_stored_total = %v, want 4096", got)
	}

	collector.RecordJob("samples", "failed", time.Second, 0, 0)
	if got := testutil.ToFloat64(collector.jobMetrics.recordsArchived.WithLabelValues("samples")); got != 12 {
		t.Errorf("failed job changed records_archived_total to %v", got)
	}
}

func TestCollector_AccessAndRetention(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordRetrieval("ok")
	collector.RecordRetrieval("rejected")
	collector.RecordRetrieval("rejected")
	collector.RecordVerification("fail")
	collector.RecordSweep("dry_run")
	collector.RecordDeletion("cases", "deleted")

	tests := []struct {
		name   string
		metric prometheus.Collector
		want   float64
	}{
		{"rejected retrievals", collector.accessMetrics.retrievalsTotal.WithLabelValues("rejected"), 2},
		{"failed verifications", collector.accessMetrics.verificationsTotal.WithLabelValues("fail"), 1},
		{"dry run sweeps", collector.retentionMetrics.sweepsTotal.WithLabelValues("dry_run"), 1},
		{"deletions", collector.retentionMetrics.deletionsTotal.WithLabelValues("cases", "deleted"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.metric); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_NilAndDisabled(t *testing.T) {
	var nilCollector *Collector
	nilCollector.JobStarted()
	nilCollector.RecordJob("samples", "completed", time.Second, 1, 1)
	nilCollector.RecordRetrieval("ok")

	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())
	collector.RecordSweep("live")
	if got := testutil.ToFloat64(collector.retentionMetrics.sweepsTotal.WithLabelValues("live")); got != 0 {
		t.Errorf("disabled collector recorded %v sweeps", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if !cl.Allow("a") {
		t.Error("known label set should stay allowed")
	}
	if cl.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cl.Count())
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordRetrieval("ok")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_archive_retrievals_total") {
		t.Error("metrics output missing retrievals counter")
	}
}
