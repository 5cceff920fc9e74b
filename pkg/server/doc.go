// Package server runs the operations HTTP endpoint of "keeper serve".
//
// The archival engine itself has no network API; the server only exposes
// what an orchestrator or scraper needs:
//
//	GET /health    liveness
//	GET /ready     readiness, runs the registered health checks
//	GET /version   build information
//	GET /metrics   Prometheus exposition (path configurable)
//
// Every request passes through request id, logging and panic recovery
// middleware. Start blocks until its context is cancelled and then shuts
// down gracefully within the configured timeout:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("engine", eng.Ping)
//
//	srv := server.New(server.Config{
//	    ListenAddress: cfg.Telemetry.Metrics.ListenAddress,
//	    MetricsPath:   cfg.Telemetry.Metrics.Path,
//	}, checker, eng.Collector().Handler())
//	err := srv.Start(ctx)
package server
