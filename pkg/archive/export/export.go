package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"archival-hq/keeper/pkg/archive"
)

// Exporter writes archive metadata.
type Exporter interface {
	// Export writes a complete record set.
	Export(ctx context.Context, records []*archive.ArchiveRecord, w io.Writer) error

	// ExportStream writes records as they arrive until recordsCh is closed
	// or ctx is done.
	ExportStream(ctx context.Context, recordsCh <-chan *archive.ArchiveRecord, w io.Writer) error

	// ContentType returns the MIME type of the output.
	ContentType() string
}

// Options configures exporters.
type Options struct {
	JSONPretty       bool
	CSVIncludeHeader bool
}

// Formats lists the supported export formats.
var Formats = []string{"json", "csv"}

// New returns the exporter for format.
func New(format string, opts Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(opts.JSONPretty), nil
	case "csv":
		return NewCSVExporter(opts.CSVIncludeHeader), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}
