package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func sampleTable() *Table {
	return &Table{
		Header: []string{"ID", "ENTITY", "RECORDS"},
		Rows: [][]string{
			{"a1", "samples", "12"},
			{"b2", "cases, closed", "3"},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" csv ", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "plain message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "plain message\n" {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := (&TextFormatter{}).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo(table) error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID  ") || !strings.Contains(lines[2], "cases, closed") {
		t.Errorf("unexpected layout:\n%s", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	t.Run("table without data", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&JSONFormatter{}).FormatTo(&buf, sampleTable()); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var rows []map[string]string
		if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(rows) != 2 || rows[1]["ENTITY"] != "cases, closed" {
			t.Errorf("rows = %v", rows)
		}
	})

	t.Run("table with data", func(t *testing.T) {
		table := sampleTable()
		table.Data = map[string]int{"total": 2}
		var buf bytes.Buffer
		if err := (&JSONFormatter{Indent: true}).FormatTo(&buf, table); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var got map[string]int
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["total"] != 2 {
			t.Errorf("got %v", got)
		}
	})
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&CSVFormatter{}).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "ID,ENTITY,RECORDS\na1,samples,12\nb2,\"cases, closed\",3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := (&CSVFormatter{OmitHeader: true}).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if strings.HasPrefix(buf.String(), "ID") {
		t.Error("header written despite OmitHeader")
	}

	if err := (&CSVFormatter{}).FormatTo(&buf, "not a table"); err == nil {
		t.Error("expected an error for non-table data")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}
	for _, tt := range tests {
		got := NewFormatter(tt.format)
		if name := typeName(got); name != tt.want {
			t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, name, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextFormatter:
		return "*cli.TextFormatter"
	case *JSONFormatter:
		return "*cli.JSONFormatter"
	case *CSVFormatter:
		return "*cli.CSVFormatter"
	default:
		return "unknown"
	}
}
