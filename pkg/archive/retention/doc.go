// Package retention decides how long archives are kept and deletes the ones
// whose time is up.
//
// # Evaluation
//
// An archive's retention deadline is fixed when it is created: the creation
// time plus the retention period of its entity type's policy, or an explicit
// override supplied by an authorized caller. A nil deadline means the archive
// is kept indefinitely. An archive is expired once the deadline has passed and
// it is not under legal hold.
//
// # Policies
//
// PolicyStore merges the policies from the main configuration with an
// optional policy file, whose entries win. Entity types without a policy use
// the default period. PolicyWatcher reloads the file when it changes.
//
// # Enforcement
//
// Enforcer sweeps the catalog. It reads every matching entry before acting so
// that deletions cannot shift pagination, then deletes expired archives one at
// a time. A failure on one archive is recorded in the result and the sweep
// continues. Held archives are counted in LegalHoldsBlocking and never
// deleted. A dry run performs no writes.
//
// Scheduler runs live sweeps on a cron schedule.
package retention
