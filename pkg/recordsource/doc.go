// Package recordsource provides the live record stores that archival jobs
// read from.
//
// A source returns the not-yet-archived records of an entity type that
// match a filter, oldest first, and remembers which archive each record
// was packaged into once a job commits:
//
//	src, err := recordsource.NewSQLiteSource(&recordsource.SQLiteConfig{Path: "data/records.db"})
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//
//	records, err := src.QueryRecords(ctx, "samples", archive.Filters{Attributes: map[string]string{"lab": "north"}})
//
// SQLiteSource keeps records in a single table with attributes stored as a
// JSON object; attribute filters are evaluated with json_extract.
// MemorySource is a map-backed implementation for tests and demos.
package recordsource
