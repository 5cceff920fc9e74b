package retention

import (
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name        string
		rec         archive.ArchiveRecord
		wantExpired bool
		wantPassed  bool
	}{
		{"no deadline", archive.ArchiveRecord{}, false, false},
		{"deadline in future", archive.ArchiveRecord{RetentionUntil: &future}, false, false},
		{"deadline passed", archive.ArchiveRecord{RetentionUntil: &past}, true, true},
		{"deadline exactly now", archive.ArchiveRecord{RetentionUntil: &now}, true, true},
		{"held past deadline", archive.ArchiveRecord{RetentionUntil: &past, LegalHold: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(&tt.rec, now); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := DeadlinePassed(&tt.rec, now); got != tt.wantPassed {
				t.Errorf("DeadlinePassed() = %v, want %v", got, tt.wantPassed)
			}
		})
	}
}

func TestComputeRetentionUntil(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	year := 365 * 24 * time.Hour
	week := 7 * 24 * time.Hour
	zero := time.Duration(0)

	tests := []struct {
		name     string
		policy   archive.RetentionPolicy
		override *time.Duration
		want     *time.Time
	}{
		{"policy period", archive.RetentionPolicy{RetentionPeriod: year}, nil, ptr(created.Add(year))},
		{"indefinite policy", archive.RetentionPolicy{}, nil, nil},
		{"override wins", archive.RetentionPolicy{RetentionPeriod: year}, &week, ptr(created.Add(week))},
		{"override to indefinite", archive.RetentionPolicy{RetentionPeriod: year}, &zero, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRetentionUntil(created, tt.policy, tt.override)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ComputeRetentionUntil() = %v, want nil", *got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("ComputeRetentionUntil() = %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestEligibleForArchival(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	policy := archive.RetentionPolicy{ArchiveAfter: 30 * 24 * time.Hour}

	old := &archive.Record{CreatedAt: now.Add(-31 * 24 * time.Hour)}
	fresh := &archive.Record{CreatedAt: now.Add(-time.Hour)}

	if !EligibleForArchival(old, policy, now) {
		t.Error("old record should be eligible")
	}
	if EligibleForArchival(fresh, policy, now) {
		t.Error("fresh record should not be eligible")
	}
	if !EligibleForArchival(fresh, archive.RetentionPolicy{}, now) {
		t.Error("any record should be eligible without archive_after")
	}
}

func ptr(t time.Time) *time.Time { return &t }
