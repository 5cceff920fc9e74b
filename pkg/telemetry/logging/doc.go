// Package logging builds the engine's structured logger.
//
// The logger is a plain *slog.Logger whose handler adds two things:
//   - fields carried on the context (actor, job and archive ids) are added
//     to every record logged with a context
//   - values of sensitive keys (key material, secrets, identities) are
//     replaced with "***" before they reach the output
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithJobID(ctx, job.ID)
//	logger.InfoContext(ctx, "job started")  // includes job_id
package logging
