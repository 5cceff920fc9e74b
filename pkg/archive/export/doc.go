// Package export writes archive catalog metadata as JSON or CSV.
//
// Exports describe archives; they never include payload bytes. Both
// exporters offer a batch variant for slices and a streaming variant fed
// from a channel, so large catalogs can be exported page by page:
//
//	exp, err := export.New("csv", export.Options{CSVIncludeHeader: true})
//	if err != nil {
//		return err
//	}
//	err = exp.ExportStream(ctx, recordsCh, os.Stdout)
//
// JSON output is always an array, pretty-printed when Options.JSONPretty
// is set. CSV output flattens filters and timestamps into single columns
// (RFC 3339, UTC).
package export
