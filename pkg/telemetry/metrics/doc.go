// Package metrics provides Prometheus metrics for the archival engine.
//
// # Metrics Categories
//
//   - Job Metrics: jobs by entity type and terminal status, job duration,
//     jobs currently packaging, records and bytes archived
//   - Access Metrics: retrievals by outcome, verifications by result
//   - Retention Metrics: sweeps by mode, deletions by entity type and outcome
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.JobStarted()
//	collector.RecordJob("samples", "completed", 3*time.Second, 12, 4096)
//	collector.RecordRetrieval("ok")
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
//
// # Prometheus Endpoint
//
// "keeper serve" mounts Handler at the configured path (default "/metrics"):
//
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// Entity type labels come from callers. A CardinalityLimiter caps the number
// of distinct label sets; entity types beyond the cap are reported as
// "other".
package metrics
