/*
Package cli provides the output formatting, progress reporting, exit codes
and signal handling shared by the keeper commands.

Output Formatting:

Commands build a Table and let the --output flag choose the rendering.
JSON output encodes Table.Data when set, so machine consumers get the full
typed value rather than the display columns:

	format, err := cli.ParseOutputFormat(outputFlag)
	table := &cli.Table{
		Header: []string{"ID", "ENTITY", "RECORDS"},
		Rows:   rows,
		Data:   archives,
	}
	err = cli.NewFormatter(format).FormatTo(os.Stdout, table)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "records")
	progress.Start(total)
	progress.Update(done)
	progress.Finish()

Exit Codes:

ExitCode maps archive error kinds to stable process exit codes, e.g.
ExitForbidden for a permission failure and ExitIntegrity for a checksum
mismatch.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
