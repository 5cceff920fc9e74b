package recordsource

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
)

// source is the surface both backends share.
type source interface {
	archive.RecordSource
	Insert(ctx context.Context, records ...*archive.Record) error
}

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func fixtureRecords() []*archive.Record {
	return []*archive.Record{
		{ID: "S-3", EntityType: "samples", CreatedAt: base.Add(2 * time.Hour), SizeBytes: 300, Attributes: map[string]string{"lab": "north"}, Data: []byte("c")},
		{ID: "S-1", EntityType: "samples", CreatedAt: base, SizeBytes: 100, Attributes: map[string]string{"lab": "north", "kit.version": "2"}, Data: []byte("a")},
		{ID: "S-2", EntityType: "samples", CreatedAt: base.Add(time.Hour), SizeBytes: 200, Attributes: map[string]string{"lab": "south"}, Data: []byte("b")},
		{ID: "C-1", EntityType: "cases", CreatedAt: base, SizeBytes: 50, Attributes: map[string]string{"court": "district"}},
	}
}

func backends(t *testing.T) map[string]source {
	t.Helper()

	sqliteSource, err := NewSQLiteSource(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "records.db"), WALMode: true})
	if err != nil {
		t.Fatalf("NewSQLiteSource failed: %v", err)
	}
	t.Cleanup(func() { sqliteSource.Close() })

	all := map[string]source{
		"memory": NewMemorySource(),
		"sqlite": sqliteSource,
	}
	for name, src := range all {
		if err := src.Insert(context.Background(), fixtureRecords()...); err != nil {
			t.Fatalf("%s: Insert failed: %v", name, err)
		}
	}
	return all
}

func recordIDs(records []*archive.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueryRecords(t *testing.T) {
	from := base.Add(30 * time.Minute)
	minSize := int64(150)

	tests := []struct {
		name    string
		filters archive.Filters
		want    []string
	}{
		{"all oldest first", archive.Filters{}, []string{"S-1", "S-2", "S-3"}},
		{"from", archive.Filters{From: &from}, []string{"S-2", "S-3"}},
		{"min size", archive.Filters{MinSize: &minSize}, []string{"S-2", "S-3"}},
		{"attribute", archive.Filters{Attributes: map[string]string{"lab": "north"}}, []string{"S-1", "S-3"}},
		{"dotted attribute key", archive.Filters{Attributes: map[string]string{"kit.version": "2"}}, []string{"S-1"}},
		{"text", archive.Filters{Text: "SOUTH"}, []string{"S-2"}},
		{"no match", archive.Filters{Attributes: map[string]string{"lab": "east"}}, nil},
	}

	for name, src := range backends(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := src.QueryRecords(context.Background(), "samples", tt.filters)
				if err != nil {
					t.Fatalf("QueryRecords failed: %v", err)
				}
				if ids := recordIDs(got); !equalIDs(ids, tt.want) {
					t.Errorf("QueryRecords() = %v, want %v", ids, tt.want)
				}
			})
		}
	}
}

func TestQueryRecords_PreservesContent(t *testing.T) {
	for name, src := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := src.QueryRecords(context.Background(), "samples", archive.Filters{Attributes: map[string]string{"kit.version": "2"}})
			if err != nil || len(got) != 1 {
				t.Fatalf("QueryRecords() = %v, %v", got, err)
			}
			rec := got[0]
			if !rec.CreatedAt.Equal(base) || rec.SizeBytes != 100 || string(rec.Data) != "a" || rec.Attributes["lab"] != "north" {
				t.Errorf("record content changed: %+v", rec)
			}
		})
	}
}

func TestMarkArchived_ExcludesFromLaterQueries(t *testing.T) {
	ctx := context.Background()
	for name, src := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := src.MarkArchived(ctx, "arc-1", []string{"S-1", "S-2"}); err != nil {
				t.Fatalf("MarkArchived failed: %v", err)
			}
			got, err := src.QueryRecords(ctx, "samples", archive.Filters{})
			if err != nil {
				t.Fatalf("QueryRecords failed: %v", err)
			}
			if ids := recordIDs(got); !equalIDs(ids, []string{"S-3"}) {
				t.Errorf("QueryRecords() after mark = %v, want [S-3]", ids)
			}

			err = src.MarkArchived(ctx, "arc-2", []string{"S-3", "missing"})
			if !errors.Is(err, archive.ErrNotFound) {
				t.Errorf("MarkArchived(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestInsert_Duplicate(t *testing.T) {
	for name, src := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := src.Insert(context.Background(), &archive.Record{ID: "S-1", EntityType: "samples", CreatedAt: base})
			if !errors.Is(err, archive.ErrDuplicateID) {
				t.Errorf("Insert(duplicate) error = %v, want ErrDuplicateID", err)
			}
		})
	}
}

func TestSQLiteSource_ArchivedIn(t *testing.T) {
	ctx := context.Background()
	src, err := NewSQLiteSource(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "records.db")})
	if err != nil {
		t.Fatalf("NewSQLiteSource failed: %v", err)
	}
	defer src.Close()

	if err := src.Insert(ctx, fixtureRecords()...); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := src.MarkArchived(ctx, "arc-9", []string{"S-2", "C-1"}); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}

	ids, err := src.ArchivedIn(ctx, "arc-9")
	if err != nil {
		t.Fatalf("ArchivedIn failed: %v", err)
	}
	if !equalIDs(ids, []string{"C-1", "S-2"}) {
		t.Errorf("ArchivedIn() = %v, want [C-1 S-2]", ids)
	}
}
