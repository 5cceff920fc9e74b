package export

import (
	"context"
	"encoding/json"
	"io"

	"archival-hq/keeper/pkg/archive"
)

// JSONExporter exports archive metadata as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// Export implements Exporter.
func (e *JSONExporter) Export(ctx context.Context, records []*archive.ArchiveRecord, w io.Writer) error {
	if records == nil {
		records = []*archive.ArchiveRecord{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return archive.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return archive.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream implements Exporter. The output is a JSON array built one
// element at a time.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *archive.ArchiveRecord, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return archive.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				closing := "]"
				if e.Pretty && count > 0 {
					closing = "\n]"
				}
				if _, err := io.WriteString(w, closing); err != nil {
					return archive.NewExportError("json", count, err)
				}
				return nil
			}

			sep := ","
			if count == 0 {
				sep = ""
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return archive.NewExportError("json", count, err)
			}

			data, err := e.serializeRecord(record)
			if err != nil {
				return archive.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return archive.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serializeRecord(record *archive.ArchiveRecord) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(record, "  ", "  ")
	}
	return json.Marshal(record)
}
