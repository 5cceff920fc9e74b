// Package archive defines the domain model of the archival and retention
// engine: archive catalog entries, archival jobs, retention policies, the
// live records that get archived, and the interfaces the engine's components
// share.
//
// # Architecture
//
// The engine is split into leaf components and the services built on them:
//
//  1. Content Packager (packager) - serializes, compresses, encrypts and checksums records
//  2. Archive Index (index) - durable catalog of ArchiveRecord entries
//  3. Retention Policy Evaluator (retention) - expiry and eligibility decisions
//  4. Job Runner (jobs) - asynchronous archival jobs
//  5. Retrieval Service (retrieval) - authorized payload access
//  6. Integrity Verifier (verify) - checksum and signature checks
//  7. Retention Enforcer (retention) - deletes expired, non-held archives
//  8. Metrics Aggregator (stats) - derived statistics over index and job history
//
// # Archive Lifecycle
//
//	Submit job → queued → running
//	     ↓
//	Query record source → Pack → Write payload (write-once)
//	     ↓
//	Index Create (commit point) → complete
//	     ↓
//	Retention deadline passes (no legal hold) → deleting → removed
//
// An ArchiveRecord is only visible through the index once its payload has been
// written; partial archives never appear in listings.
//
// # Errors
//
// Every error returned by the engine maps to a Kind (see KindOf) and to an
// Outcome (see Classify), so callers can distinguish an operation that did not
// run from one that ran and found a problem from one that failed unexpectedly.
package archive
