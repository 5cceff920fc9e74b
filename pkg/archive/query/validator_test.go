package query

import (
	"strings"
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	minSize, maxSize := int64(100), int64(10)
	minRecords, maxRecords := 5, 50

	tests := []struct {
		name    string
		query   *archive.ListQuery
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid query with all filters",
			query: &archive.ListQuery{
				EntityType:  "samples",
				CreatedFrom: &past,
				CreatedTo:   &now,
				MinRecords:  &minRecords,
				MaxRecords:  &maxRecords,
				Search:      "lab",
				Status:      archive.StatusComplete,
				Limit:       100,
			},
		},
		{
			name:  "valid query with minimal filters",
			query: &archive.ListQuery{Limit: 50},
		},
		{
			name:    "negative limit",
			query:   &archive.ListQuery{Limit: -1},
			wantErr: true,
			errMsg:  "limit must be >= 0",
		},
		{
			name:    "limit too high",
			query:   &archive.ListQuery{Limit: MaxLimit + 1},
			wantErr: true,
			errMsg:  "limit must be <=",
		},
		{
			name:    "negative offset",
			query:   &archive.ListQuery{Offset: -5},
			wantErr: true,
			errMsg:  "offset must be >= 0",
		},
		{
			name:    "inverted time range",
			query:   &archive.ListQuery{CreatedFrom: &now, CreatedTo: &past},
			wantErr: true,
			errMsg:  "created_from must be before created_to",
		},
		{
			name:    "inverted size range",
			query:   &archive.ListQuery{MinSize: &minSize, MaxSize: &maxSize},
			wantErr: true,
			errMsg:  "min_size must be <= max_size",
		},
		{
			name:    "unknown status",
			query:   &archive.ListQuery{Status: "pending"},
			wantErr: true,
			errMsg:  "invalid status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want message containing %q", err, tt.errMsg)
			}
			if !archive.IsKind(err, archive.KindValidation) {
				t.Errorf("Validate() kind = %v, want validation", archive.KindOf(err))
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &archive.ListQuery{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultLimit)
	}

	q = &archive.ListQuery{Limit: 7}
	Limits{DefaultLimit: 20, MaxLimit: 50}.ApplyDefaults(q)
	if q.Limit != 7 {
		t.Errorf("explicit Limit overwritten: %d", q.Limit)
	}
}
