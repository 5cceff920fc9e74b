// Package tracing exports OpenTelemetry spans for archival jobs, retrievals,
// verifications, retention sweeps and operations endpoint requests.
//
// Spans are sent to an OTLP gRPC collector. A disabled or nil *Tracer hands
// out no-op spans, so callers never check whether tracing is on:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "archive.retrieve", tracing.ArchiveID(id))
//	defer func() { tracing.End(span, err) }()
//
// Archival jobs run detached from the request that submitted them. Their
// spans start a new trace linked to the submitting span.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio      # always, never, ratio
//	    sample_ratio: 0.25
//	    endpoint: otel-collector:4317
//	    otlp:
//	      insecure: true
//	      timeout: 10s
package tracing
