/*
Package engine assembles the archival components into a single Engine.

An Engine owns its catalog, payload store, record source, job runner and
retention machinery. Nothing is shared through package state, so several
engines (one per tenant, one per test) can run in the same process.

	cfg, err := config.LoadConfig("keeper.yaml")
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	res, err := eng.CreateArchive(ctx, engine.CreateArchiveRequest{
		Caller:     access.Identity{ID: "alice", Roles: []string{"archivist"}},
		EntityType: "samples",
	})

Every operation takes its own request type carrying the caller identity.
Validation and permission checks run before anything is read or written;
a denied call never changes state.

Collaborators built from configuration can be replaced with options, which
is how tests run an engine entirely in memory:

	eng, err := engine.New(cfg,
		engine.WithIndex(index.NewMemoryIndex()),
		engine.WithBlobStore(blobstore.NewMemoryStore()),
		engine.WithRecordSource(recordsource.NewMemorySource(records...)),
		engine.WithClock(clock),
	)
*/
package engine
