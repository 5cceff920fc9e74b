package archive

import (
	"errors"
	"testing"
	"time"
)

func TestMutation_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(24 * time.Hour)
	deleting := StatusDeleting

	tests := []struct {
		name     string
		rec      ArchiveRecord
		mutation Mutation
		wantErr  error
		check    func(t *testing.T, rec *ArchiveRecord)
	}{
		{
			name:     "place legal hold",
			rec:      ArchiveRecord{Status: StatusComplete},
			mutation: Mutation{LegalHold: &HoldChange{Active: true, By: "counsel", Reason: "litigation 42", At: now}},
			check: func(t *testing.T, rec *ArchiveRecord) {
				if !rec.LegalHold || rec.LegalHoldBy != "counsel" || rec.LegalHoldReason != "litigation 42" {
					t.Errorf("hold not applied: %+v", rec)
				}
				if rec.LegalHoldAt == nil || !rec.LegalHoldAt.Equal(now) {
					t.Errorf("LegalHoldAt = %v, want %v", rec.LegalHoldAt, now)
				}
			},
		},
		{
			name:     "release clears holder",
			rec:      ArchiveRecord{Status: StatusComplete, LegalHold: true, LegalHoldBy: "counsel", LegalHoldAt: &now},
			mutation: Mutation{LegalHold: &HoldChange{Active: false}},
			check: func(t *testing.T, rec *ArchiveRecord) {
				if rec.LegalHold || rec.LegalHoldBy != "" || rec.LegalHoldAt != nil {
					t.Errorf("hold not released: %+v", rec)
				}
			},
		},
		{
			name:     "set retention",
			rec:      ArchiveRecord{Status: StatusComplete},
			mutation: Mutation{RetentionUntil: &deadline},
			check: func(t *testing.T, rec *ArchiveRecord) {
				if rec.RetentionUntil == nil || !rec.RetentionUntil.Equal(deadline) {
					t.Errorf("RetentionUntil = %v, want %v", rec.RetentionUntil, deadline)
				}
			},
		},
		{
			name:     "clear retention wins",
			rec:      ArchiveRecord{Status: StatusComplete, RetentionUntil: &deadline},
			mutation: Mutation{ClearRetention: true, RetentionUntil: &deadline},
			check: func(t *testing.T, rec *ArchiveRecord) {
				if rec.RetentionUntil != nil {
					t.Errorf("RetentionUntil = %v, want nil", rec.RetentionUntil)
				}
			},
		},
		{
			name:     "status precondition fails",
			rec:      ArchiveRecord{Status: StatusDeleting},
			mutation: Mutation{IfStatus: StatusComplete, LegalHold: &HoldChange{Active: true}},
			wantErr:  ErrPrecondition,
		},
		{
			name:     "held archive cannot enter deleting",
			rec:      ArchiveRecord{Status: StatusComplete, LegalHold: true},
			mutation: Mutation{Status: &deleting, RequireNoHold: true},
			wantErr:  ErrPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			err := tt.mutation.Apply(&rec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}
			tt.check(t, &rec)
		})
	}
}

func TestFilters_Matches(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	record := &Record{
		ID:         "S-0042",
		EntityType: "samples",
		CreatedAt:  base,
		SizeBytes:  512,
		Attributes: map[string]string{"lab": "north", "status": "released"},
	}
	from := base.Add(-time.Hour)
	after := base.Add(time.Hour)
	minSize := int64(600)

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"empty matches", Filters{}, true},
		{"inside range", Filters{From: &from, To: &after}, true},
		{"before range", Filters{From: &after}, false},
		{"too small", Filters{MinSize: &minSize}, false},
		{"attribute match", Filters{Attributes: map[string]string{"lab": "north"}}, true},
		{"attribute mismatch", Filters{Attributes: map[string]string{"lab": "south"}}, false},
		{"text on id", Filters{Text: "s-004"}, true},
		{"text on attribute", Filters{Text: "RELEASED"}, true},
		{"text miss", Filters{Text: "quarantine"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Matches(record); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilters_Validate(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	small, big := int64(10), int64(5)

	tests := []struct {
		name    string
		filters Filters
		wantErr bool
	}{
		{"zero", Filters{}, false},
		{"inverted dates", Filters{From: &from, To: &to}, true},
		{"inverted sizes", Filters{MinSize: &small, MaxSize: &big}, true},
		{"negative cap", Filters{MaxRecords: -1}, true},
		{"bad attribute key", Filters{Attributes: map[string]string{"a'b": "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filters.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListQuery_Matches(t *testing.T) {
	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rec := &ArchiveRecord{
		ID:          "7f0c1f5e-aaaa-bbbb-cccc-000000000001",
		EntityType:  "cases",
		RecordCount: 12,
		SizeBytes:   2048,
		CreatedAt:   created,
		CreatedBy:   "alice",
		Status:      StatusComplete,
		Filters:     Filters{Text: "homicide"},
	}
	held := true
	minRecords := 13

	tests := []struct {
		name  string
		query ListQuery
		want  bool
	}{
		{"entity type", ListQuery{EntityType: "cases"}, true},
		{"other entity type", ListQuery{EntityType: "samples"}, false},
		{"record count floor", ListQuery{MinRecords: &minRecords}, false},
		{"legal hold filter", ListQuery{LegalHold: &held}, false},
		{"search by creator", ListQuery{Search: "ALICE"}, true},
		{"search by filter text", ListQuery{Search: "homicide"}, true},
		{"search miss", ListQuery{Search: "burglary"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
