package retention

import (
	"time"

	"archival-hq/keeper/pkg/archive"
)

// IsExpired reports whether rec may be deleted at now: it has a deadline,
// the deadline has passed and it is not under legal hold.
func IsExpired(rec *archive.ArchiveRecord, now time.Time) bool {
	return DeadlinePassed(rec, now) && !rec.LegalHold
}

// DeadlinePassed reports whether rec's retention deadline has passed,
// regardless of legal hold.
func DeadlinePassed(rec *archive.ArchiveRecord, now time.Time) bool {
	return rec.RetentionUntil != nil && !now.Before(*rec.RetentionUntil)
}

// ComputeRetentionUntil returns the deadline for an archive created at
// createdAt. A non-nil override takes precedence over the policy period.
// The result is nil (retain indefinitely) when the effective period is zero.
func ComputeRetentionUntil(createdAt time.Time, policy archive.RetentionPolicy, override *time.Duration) *time.Time {
	period := policy.RetentionPeriod
	if override != nil {
		period = *override
	}
	if period <= 0 {
		return nil
	}
	deadline := createdAt.Add(period).UTC()
	return &deadline
}

// EligibleForArchival reports whether a live record is old enough to be
// archived under policy.
func EligibleForArchival(rec *archive.Record, policy archive.RetentionPolicy, now time.Time) bool {
	if policy.ArchiveAfter <= 0 {
		return true
	}
	return !rec.CreatedAt.Add(policy.ArchiveAfter).After(now)
}
