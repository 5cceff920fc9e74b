// Package health provides liveness, readiness and version endpoints for
// "keeper serve".
//
// Liveness (/health) only reports that the process is up. Readiness
// (/ready) runs every registered check concurrently, each bounded by the
// checker's timeout, and answers 503 when any of them fails:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("engine", eng.Ping)
//
//	mux := http.NewServeMux()
//	health.Register(mux, checker, version, commit, buildTime)
package health
