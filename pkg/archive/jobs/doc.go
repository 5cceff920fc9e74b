// Package jobs runs archival jobs in the background.
//
// Submit validates a request, records a queued job and returns at once. A
// goroutine then takes the job through running to completed or failed:
//
//  1. query the record source
//  2. drop records younger than the policy's archive_after
//  3. fail with EmptyRecordSet if nothing is left
//  4. pack, then write the payload to the blob store
//  5. register the archive in the index (the commit point)
//  6. mark the source records as archived
//
// A payload written but never committed is deleted, so no partial archive is
// visible through the index. Jobs that exceed the configured timeout fail
// with ErrJobTimeout.
//
// At most one job runs per (entity type, filters) signature. A duplicate
// submission either joins the running job or is rejected with a conflict,
// depending on the duplicate policy.
//
// Terminal states are final. Job history is kept in a Store so that status
// survives restarts; Recover fails jobs a previous process left unfinished.
package jobs
