package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
)

func sampleArchives(n int) []*archive.ArchiveRecord {
	created := time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)
	deadline := created.AddDate(1, 0, 0)
	out := make([]*archive.ArchiveRecord, n)
	for i := range out {
		out[i] = &archive.ArchiveRecord{
			ID:                "arc-" + string(rune('a'+i)),
			EntityType:        "samples",
			Filters:           archive.Filters{Attributes: map[string]string{"lab": "north"}},
			RecordCount:       12,
			SizeBytes:         100,
			UncompressedBytes: 250,
			Checksum:          "abc123",
			Compression:       "zstd",
			RetentionUntil:    &deadline,
			CreatedAt:         created,
			CreatedBy:         "alice",
			Status:            archive.StatusComplete,
		}
	}
	if n > 0 {
		out[0].LegalHold = true
		out[0].LegalHoldBy = "counsel"
		out[0].LegalHoldReason = `Doe v. Lab, "discovery"`
	}
	return out
}

func feed(records []*archive.ArchiveRecord) <-chan *archive.ArchiveRecord {
	ch := make(chan *archive.ArchiveRecord, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "JSON", "csv"} {
		if _, err := New(format, Options{}); err != nil {
			t.Errorf("New(%q) failed: %v", format, err)
		}
	}
	if _, err := New("xml", Options{}); err == nil {
		t.Error("New(xml) should fail")
	}
}

func TestJSONExporter(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		for _, n := range []int{0, 1, 3} {
			records := sampleArchives(n)

			var batch, stream bytes.Buffer
			exp := NewJSONExporter(pretty)
			if err := exp.Export(context.Background(), records, &batch); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if err := exp.ExportStream(context.Background(), feed(records), &stream); err != nil {
				t.Fatalf("ExportStream failed: %v", err)
			}

			for name, out := range map[string][]byte{"batch": batch.Bytes(), "stream": stream.Bytes()} {
				var decoded []archive.ArchiveRecord
				if err := json.Unmarshal(out, &decoded); err != nil {
					t.Fatalf("%s output (pretty=%v, n=%d) is not a JSON array: %v\n%s", name, pretty, n, err, out)
				}
				if len(decoded) != n {
					t.Errorf("%s decoded %d records, want %d", name, len(decoded), n)
				}
				if n > 0 && (decoded[0].ID != "arc-a" || !decoded[0].LegalHold || decoded[0].RecordCount != 12) {
					t.Errorf("%s first record = %+v", name, decoded[0])
				}
			}
		}
	}
}

func TestCSVExporter(t *testing.T) {
	records := sampleArchives(2)

	tests := []struct {
		name     string
		header   bool
		wantRows int
	}{
		{"with header", true, 3},
		{"without header", false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var batch, stream bytes.Buffer
			exp := NewCSVExporter(tt.header)
			if err := exp.Export(context.Background(), records, &batch); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if err := exp.ExportStream(context.Background(), feed(records), &stream); err != nil {
				t.Fatalf("ExportStream failed: %v", err)
			}
			if batch.String() != stream.String() {
				t.Errorf("batch and stream output differ:\n%s\n---\n%s", batch.String(), stream.String())
			}

			rows, err := csv.NewReader(&batch).ReadAll()
			if err != nil {
				t.Fatalf("output is not valid CSV: %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("rows = %d, want %d", len(rows), tt.wantRows)
			}
			for _, row := range rows {
				if len(row) != len(headerRow) {
					t.Errorf("row has %d columns, want %d", len(row), len(headerRow))
				}
			}

			data := rows[len(rows)-2]
			if data[0] != "arc-a" || data[14] != "true" || data[16] != `Doe v. Lab, "discovery"` {
				t.Errorf("first data row = %v", data)
			}
			if data[18] != "2026-04-10T08:30:00Z" {
				t.Errorf("created_at = %s", data[18])
			}
		})
	}
}

func TestCSVExporter_NoPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sampleArchives(1), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(strings.ToLower(buf.String()), "data") {
		t.Error("CSV export should not carry payload columns")
	}
}

func TestExportStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := make(chan *archive.ArchiveRecord)

	for _, exp := range []Exporter{NewJSONExporter(false), NewCSVExporter(true)} {
		err := exp.ExportStream(ctx, never, &bytes.Buffer{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%T.ExportStream() error = %v, want context.Canceled", exp, err)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteErrors(t *testing.T) {
	for _, exp := range []Exporter{NewJSONExporter(true), NewCSVExporter(true)} {
		err := exp.Export(context.Background(), sampleArchives(1), failingWriter{})
		var exportErr *archive.ExportError
		if !errors.As(err, &exportErr) {
			t.Errorf("%T.Export() error = %v, want ExportError", exp, err)
		}
	}
}
