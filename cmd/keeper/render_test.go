package main

import (
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/engine"
)

func TestFormatters(t *testing.T) {
	deadline := time.Date(2027, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"deadline", formatDeadline(&deadline), "2027-01-02T02:04:05Z"},
		{"indefinite", formatDeadline(nil), "indefinite"},
		{"zero time", formatTime(time.Time{}), ""},
		{"period days", formatPeriod(365 * 24 * time.Hour), "365d"},
		{"period hours", formatPeriod(36 * time.Hour), "36h0m0s"},
		{"period none", formatPeriod(0), "-"},
		{"bytes", formatBytes(1536), "1.5 KiB"},
		{"negative bytes", formatBytes(-5), "0 B"},
		{"attrs sorted", formatAttrs(map[string]string{"lab": "north", "batch": "7"}), "batch=7 lab=north"},
		{"pass", passFail(true), "pass"},
		{"fail", passFail(false), "FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestArchivesTable(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	page := &engine.ArchivePage{
		Archives: []*archive.ArchiveRecord{
			{ID: "a-1", EntityType: "cases", RecordCount: 3, SizeBytes: 2048, CreatedAt: created, LegalHold: true},
			{ID: "a-2", EntityType: "samples", RecordCount: 1, SizeBytes: 10, CreatedAt: created},
		},
		Total: 2,
	}

	table := archivesTable(page)
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	if table.Data != page {
		t.Error("table data should be the page for JSON output")
	}
	first := table.Rows[0]
	if first[0] != "a-1" || first[3] != "2.0 KiB" || first[5] != "indefinite" || first[6] != "held" {
		t.Errorf("first row = %v", first)
	}
	if table.Rows[1][6] != "" {
		t.Errorf("unheld archive hold column = %q, want empty", table.Rows[1][6])
	}
}
