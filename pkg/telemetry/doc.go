// Package telemetry groups the observability packages used by Keeper.
//
//   - logging: slog construction from configuration and context fields
//     (job id, archive id, actor)
//   - metrics: Prometheus collector for jobs, retrievals, verifications and
//     retention sweeps
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness and readiness checks served by the ops endpoint
//
// Every component accepts a nil collector or tracer and degrades to a no-op,
// so library callers and tests never have to configure telemetry.
package telemetry
