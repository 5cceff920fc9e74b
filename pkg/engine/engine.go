package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/archive/index"
	"archival-hq/keeper/pkg/archive/jobs"
	"archival-hq/keeper/pkg/archive/packager"
	"archival-hq/keeper/pkg/archive/query"
	"archival-hq/keeper/pkg/archive/retention"
	"archival-hq/keeper/pkg/archive/retrieval"
	"archival-hq/keeper/pkg/archive/stats"
	"archival-hq/keeper/pkg/archive/verify"
	"archival-hq/keeper/pkg/config"
	"archival-hq/keeper/pkg/recordsource"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/security/keys"
	"archival-hq/keeper/pkg/security/secrets"
	"archival-hq/keeper/pkg/telemetry/metrics"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

// Option replaces a collaborator that New would otherwise build from
// configuration.
type Option func(*options)

type options struct {
	index    archive.Index
	blobs    blobstore.Store
	source   archive.RecordSource
	jobStore jobs.Store
	audit    audit.Sink
	metrics  *metrics.Collector
	secrets  *secrets.Manager
	keys     verify.PublicKeys
	cipher   packager.Cipher
	signer   *packager.Signer
	tracer   *tracing.Tracer
	version  string
	clock    func() time.Time
}

// WithIndex uses idx as the archive catalog. The engine closes it.
func WithIndex(idx archive.Index) Option {
	return func(o *options) { o.index = idx }
}

// WithBlobStore uses store for archive payloads.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) { o.blobs = store }
}

// WithRecordSource uses src as the live record store.
func WithRecordSource(src archive.RecordSource) Option {
	return func(o *options) { o.source = src }
}

// WithJobStore uses store for job history. The engine closes it.
func WithJobStore(store jobs.Store) Option {
	return func(o *options) { o.jobStore = store }
}

// WithAuditSink sends audit events to sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(o *options) { o.audit = sink }
}

// WithMetrics records Prometheus metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) { o.metrics = collector }
}

// WithTracer records spans on tracer instead of one built from the tracing
// configuration. The engine shuts it down on Close.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithVersion sets the service version reported on exported spans.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithSecrets resolves encryption keys through manager.
func WithSecrets(manager *secrets.Manager) Option {
	return func(o *options) { o.secrets = manager }
}

// WithPublicKeys verifies archive signatures against keyring.
func WithPublicKeys(keyring verify.PublicKeys) Option {
	return func(o *options) { o.keys = keyring }
}

// WithCipher encrypts new archives with cipher, ignoring the encryption
// section of the configuration.
func WithCipher(cipher packager.Cipher) Option {
	return func(o *options) { o.cipher = cipher }
}

// WithSigner signs new archives with signer, ignoring the signing section of
// the configuration.
func WithSigner(signer *packager.Signer) Option {
	return func(o *options) { o.signer = signer }
}

// WithClock sets the time source used for deadlines, job timestamps and
// audit events.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// Engine is an archival engine instance.
type Engine struct {
	cfg *config.Config

	index    archive.Index
	blobs    blobstore.Store
	source   archive.RecordSource
	jobStore jobs.Store
	packager *packager.Packager
	policies *retention.PolicyStore
	access   *access.Policy
	audit    audit.Sink
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	limits   query.Limits
	clock    func() time.Time

	runner    *jobs.Runner
	retrieval *retrieval.Service
	verifier  *verify.Verifier
	enforcer  *retention.Enforcer
	stats     *stats.Aggregator

	closers []io.Closer
	logger  *slog.Logger
}

// New builds an engine from cfg. cfg must have defaults applied; it is
// validated here.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: configuration is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.version == "" {
		o.version = "dev"
	}

	e := &Engine{
		cfg:    cfg,
		clock:  o.clock,
		limits: query.Limits{DefaultLimit: cfg.Query.DefaultLimit, MaxLimit: cfg.Query.MaxLimit},
		logger: slog.Default().With("component", "engine"),
	}

	if err := e.build(o); err != nil {
		_ = e.tracer.Shutdown(context.Background())
		_ = e.closeAll()
		return nil, err
	}

	e.logger.Info("engine ready",
		"index", describe(o.index != nil, cfg.Index.Backend),
		"storage", describe(o.blobs != nil, cfg.Storage.Backend),
		"source", describe(o.source != nil, cfg.Source.Backend),
		"jobs", describe(o.jobStore != nil, cfg.Jobs.HistoryBackend),
		"compression", cfg.Packaging.Compression,
		"policies", len(e.policies.List()),
		"tracing", e.tracer.Enabled(),
	)
	return e, nil
}

func (e *Engine) build(o *options) error {
	cfg := e.cfg
	var err error

	e.access, err = access.NewPolicy(cfg.Access.Roles)
	if err != nil {
		return fmt.Errorf("access roles: %w", err)
	}

	e.audit = o.audit
	if e.audit == nil {
		switch cfg.Audit.Backend {
		case "memory":
			e.audit = audit.NewMemorySink()
		default:
			e.audit = audit.NewLogSink(nil)
		}
	}

	e.metrics = o.metrics
	if e.metrics == nil {
		e.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	if e.index, err = e.openIndex(o.index); err != nil {
		return err
	}
	if e.blobs, err = e.openBlobs(o.blobs); err != nil {
		return err
	}
	if e.source, err = e.openSource(o.source); err != nil {
		return err
	}
	if e.jobStore, err = e.openJobStore(o.jobStore); err != nil {
		return err
	}

	e.policies, err = retention.NewPolicyStore(policiesFromConfig(cfg.Retention.Policies), cfg.Retention.DefaultPeriod, cfg.Retention.PolicyFile)
	if err != nil {
		return fmt.Errorf("retention policies: %w", err)
	}

	manager := o.secrets
	if manager == nil {
		manager, err = e.openSecrets()
		if err != nil {
			return err
		}
	}

	if e.packager, err = e.buildPackager(o, manager); err != nil {
		return err
	}

	publicKeys := o.keys
	if publicKeys == nil {
		publicKeys = keys.NewKeyring(cfg.Packaging.Signing.KeyringDir)
	}

	e.tracer = o.tracer
	if e.tracer == nil {
		e.tracer, err = tracing.New(&cfg.Telemetry.Tracing, o.version)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	e.runner, err = jobs.NewRunner(jobs.Config{
		Index:           e.index,
		Blobs:           e.blobs,
		Source:          e.source,
		Packager:        e.packager,
		Policies:        e.policies,
		Store:           e.jobStore,
		Audit:           e.audit,
		Metrics:         e.metrics,
		Tracer:          e.tracer,
		Clock:           e.clock,
		Timeout:         cfg.Jobs.Timeout,
		MaxConcurrent:   cfg.Jobs.MaxConcurrent,
		DuplicatePolicy: jobs.DuplicatePolicy(cfg.Jobs.DuplicatePolicy),
	})
	if err != nil {
		return err
	}

	e.retrieval = retrieval.New(retrieval.Config{
		Index:    e.index,
		Blobs:    e.blobs,
		Packager: e.packager,
		Access:   e.access,
		Audit:    e.audit,
		Metrics:  e.metrics,
		Clock:    e.clock,
	})
	e.verifier = verify.New(verify.Config{
		Index:    e.index,
		Blobs:    e.blobs,
		Packager: e.packager,
		Access:   e.access,
		Keys:     publicKeys,
		Audit:    e.audit,
		Metrics:  e.metrics,
		Clock:    e.clock,
	})
	e.enforcer = retention.NewEnforcer(retention.EnforcerConfig{
		Index:    e.index,
		Blobs:    e.blobs,
		Audit:    e.audit,
		Metrics:  e.metrics,
		Clock:    e.clock,
		PageSize: cfg.Retention.PageSize,
	})
	e.stats = stats.NewAggregator(e.index, e.jobStore, e.policies, e.clock)

	return nil
}

func (e *Engine) openIndex(injected archive.Index) (archive.Index, error) {
	idx := injected
	if idx == nil {
		switch e.cfg.Index.Backend {
		case "memory":
			idx = index.NewMemoryIndex()
		case "sqlite":
			sc := e.cfg.Index.SQLite
			if err := ensureParentDir(sc.Path); err != nil {
				return nil, err
			}
			sqliteIdx, err := index.NewSQLiteIndex(&index.SQLiteConfig{
				Path:         sc.Path,
				MaxOpenConns: sc.MaxOpenConns,
				MaxIdleConns: sc.MaxIdleConns,
				WALMode:      sc.WALMode,
				BusyTimeout:  sc.BusyTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to open archive index: %w", err)
			}
			idx = sqliteIdx
		default:
			return nil, fmt.Errorf("unsupported index backend: %s", e.cfg.Index.Backend)
		}
	}
	e.closers = append(e.closers, idx)
	return idx, nil
}

func (e *Engine) openBlobs(injected blobstore.Store) (blobstore.Store, error) {
	if injected != nil {
		return injected, nil
	}
	switch e.cfg.Storage.Backend {
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "filesystem":
		store, err := blobstore.NewFileStore(e.cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open payload store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", e.cfg.Storage.Backend)
	}
}

func (e *Engine) openSource(injected archive.RecordSource) (archive.RecordSource, error) {
	if injected != nil {
		return injected, nil
	}
	switch e.cfg.Source.Backend {
	case "memory":
		return recordsource.NewMemorySource(), nil
	case "sqlite":
		sc := e.cfg.Source.SQLite
		if err := ensureParentDir(sc.Path); err != nil {
			return nil, err
		}
		src, err := recordsource.NewSQLiteSource(&recordsource.SQLiteConfig{
			Path:         sc.Path,
			MaxOpenConns: sc.MaxOpenConns,
			WALMode:      sc.WALMode,
			BusyTimeout:  sc.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open record source: %w", err)
		}
		e.closers = append(e.closers, src)
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", e.cfg.Source.Backend)
	}
}

func (e *Engine) openJobStore(injected jobs.Store) (jobs.Store, error) {
	store := injected
	if store == nil {
		switch e.cfg.Jobs.HistoryBackend {
		case "memory":
			store = jobs.NewMemoryStore()
		case "sqlite":
			if err := ensureParentDir(e.cfg.Jobs.HistoryPath); err != nil {
				return nil, err
			}
			sqliteStore, err := jobs.NewSQLiteStore(jobs.SQLiteStoreConfig{
				Path:        e.cfg.Jobs.HistoryPath,
				BusyTimeout: e.cfg.Index.SQLite.BusyTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to open job history: %w", err)
			}
			store = sqliteStore
		default:
			return nil, fmt.Errorf("unsupported job history backend: %s", e.cfg.Jobs.HistoryBackend)
		}
	}
	e.closers = append(e.closers, store)
	return store, nil
}

func (e *Engine) openSecrets() (*secrets.Manager, error) {
	sc := e.cfg.Secrets
	var providers []secrets.SecretProvider
	if sc.FileDir != "" {
		fp, err := secrets.NewFileProvider(sc.FileDir, sc.Watch)
		if err != nil {
			return nil, fmt.Errorf("secrets file provider: %w", err)
		}
		e.closers = append(e.closers, fp)
		providers = append(providers, fp)
	}
	providers = append(providers, secrets.NewEnvProvider(sc.EnvPrefix))
	return secrets.NewManager(providers, secrets.DefaultCacheConfig()), nil
}

func (e *Engine) buildPackager(o *options, manager *secrets.Manager) (*packager.Packager, error) {
	pc := e.cfg.Packaging

	compression, err := packager.ParseCompressionTag(pc.Compression)
	if err != nil {
		return nil, err
	}

	cipher := o.cipher
	if cipher == nil && pc.Encryption.Enabled {
		// Key material is resolved once; rotating it requires a new engine.
		ctx := context.Background()
		switch pc.Encryption.Scheme {
		case "age":
			identity, err := manager.GetSecret(ctx, pc.Encryption.IdentitySecret)
			if err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
				return nil, fmt.Errorf("age identity: %w", err)
			}
			if identity == "" {
				e.logger.Warn("no age identity configured; encrypted archives cannot be read back",
					"secret", pc.Encryption.IdentitySecret)
			}
			if cipher, err = packager.NewAgeCipher(pc.Encryption.Recipients, identity); err != nil {
				return nil, err
			}
		default:
			key, err := manager.GetKey(ctx, pc.Encryption.KeySecret)
			if err != nil {
				return nil, fmt.Errorf("encryption key: %w", err)
			}
			if cipher, err = packager.NewXChaCha20Cipher(key); err != nil {
				return nil, err
			}
		}
	}

	signer := o.signer
	if signer == nil && pc.Signing.Enabled {
		path := pc.Signing.PrivateKeyPath
		if path == "" {
			path = keys.PrivateKeyPath(pc.Signing.KeyringDir, pc.Signing.KeyID)
		}
		if signer, err = keys.LoadSigner(pc.Signing.KeyID, path); err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
	}

	return packager.New(packager.Options{
		Compression: compression,
		Cipher:      cipher,
		Signer:      signer,
	}), nil
}

// Recover marks jobs left queued or running by a previous process as
// failed. It returns the number of jobs recovered.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	return e.runner.Recover(ctx)
}

// Close waits for in-flight jobs until ctx expires, then releases every
// resource the engine opened.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.runner != nil {
		if err := e.runner.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.closeAll(); err != nil {
		errs = append(errs, err)
	}
	if err := e.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) closeAll() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Policies returns the retention policy store, e.g. to attach a watcher.
func (e *Engine) Policies() *retention.PolicyStore {
	return e.policies
}

// Enforcer returns the retention enforcer, e.g. to schedule sweeps.
func (e *Engine) Enforcer() *retention.Enforcer {
	return e.enforcer
}

// Collector returns the Prometheus collector.
func (e *Engine) Collector() *metrics.Collector {
	return e.metrics
}

// Tracer returns the span tracer. It is disabled unless tracing is
// configured.
func (e *Engine) Tracer() *tracing.Tracer {
	return e.tracer
}

// startSpan starts a span for an engine operation.
func (e *Engine) startSpan(ctx context.Context, name string, caller access.Identity, attrs ...tracing.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, tracing.Actor(caller.ID))
	return e.tracer.Start(ctx, name, attrs...)
}

// endSpan ends span with the outcome of an engine operation.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(tracing.ErrorKind(archive.KindOf(err).String()))
	}
	tracing.End(span, err)
}

// Ping checks that the catalog and job history respond.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.index.Count(ctx, &archive.ListQuery{}); err != nil {
		return fmt.Errorf("archive index: %w", err)
	}
	if _, err := e.jobStore.List(ctx, jobs.JobQuery{Limit: 1}); err != nil {
		return fmt.Errorf("job history: %w", err)
	}
	return nil
}

func policiesFromConfig(in []config.PolicyConfig) []archive.RetentionPolicy {
	out := make([]archive.RetentionPolicy, 0, len(in))
	for _, p := range in {
		out = append(out, archive.RetentionPolicy{
			EntityType:           p.EntityType,
			RetentionPeriod:      p.RetentionPeriod,
			LegalHoldOverridable: p.LegalHoldOverridable,
			ArchiveAfter:         p.ArchiveAfter,
		})
	}
	return out
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

func describe(injected bool, backend string) string {
	if injected {
		return "injected"
	}
	return backend
}
