// Keeper is an archival and retention engine for operational records.
//
// It packages live records into compressed, checksummed and optionally
// encrypted and signed archives, catalogs them, retrieves and verifies them
// on demand, and deletes them when their retention period lapses unless a
// legal hold blocks it.
//
// Usage:
//
//	# Run the scheduler, policy watcher and operations endpoint
//	keeper serve --config /etc/keeper/config.yaml
//
//	# Archive every closed case older than the policy allows
//	keeper archive create cases --attr status=closed --wait
//
//	# Read an archive back
//	keeper archive retrieve 3f6c9a7e-... --limit 20
//
//	# Preview a retention sweep
//	keeper retention enforce --dry-run
//
// Every command acts on behalf of the caller named by --actor and --roles
// (or KEEPER_ACTOR and KEEPER_ROLES).
package main

func main() {
	Execute()
}
