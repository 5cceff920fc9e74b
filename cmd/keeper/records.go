package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/cli"
	"archival-hq/keeper/pkg/engine"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage live records",
}

var importFlags struct {
	batchSize int
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import live records from JSON",
	Long: `Import live records into the record source so they can be archived.

The file holds either a JSON array of records or one record per line
(JSON Lines). Use "-" to read from stdin. Each record needs an id,
entity_type and created_at:

  {"id": "S-001", "entity_type": "samples", "created_at": "2026-01-05T09:00:00Z",
   "size_bytes": 512, "attributes": {"lab": "north"}}`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordsImport,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsImportCmd)

	recordsImportCmd.Flags().IntVar(&importFlags.batchSize, "batch-size", 500, "records per import batch")
}

func runRecordsImport(cmd *cobra.Command, args []string) error {
	if importFlags.batchSize <= 0 {
		return archive.Validationf("records import", "--batch-size must be positive")
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	records, err := decodeRecords(in)
	if err != nil {
		return archive.NewError(archive.KindValidation, "records import", args[0], err)
	}
	if len(records) == 0 {
		return archive.Validationf("records import", "%s contains no records", args[0])
	}

	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "records")
		progress.Start(int64(len(records)))

		imported := 0
		for start := 0; start < len(records); start += importFlags.batchSize {
			end := min(start+importFlags.batchSize, len(records))
			n, err := e.ImportRecords(ctx, engine.ImportRecordsRequest{
				Caller:  caller(),
				Records: records[start:end],
			})
			if err != nil {
				progress.Error(err)
				return err
			}
			imported += n
			progress.Update(int64(imported))
		}
		progress.Finish()

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d records\n", imported)
		return nil
	})
}

// decodeRecords reads a JSON array or a stream of JSON objects.
func decodeRecords(r io.Reader) ([]*archive.Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.DisallowUnknownFields()

	if first == '[' {
		var records []*archive.Record
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("invalid record array: %w", err)
		}
		return records, nil
	}

	var records []*archive.Record
	for {
		var rec archive.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid record %d: %w", len(records)+1, err)
		}
		records = append(records, &rec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
