// Package verify checks stored archives against their catalog entries
// without modifying them.
package verify

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/archive/packager"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/telemetry/logging"
	"archival-hq/keeper/pkg/telemetry/metrics"
)

const op = "archive.verify"

// PublicKeys resolves signing keys by id.
type PublicKeys interface {
	PublicKey(keyID string) (ed25519.PublicKey, error)
}

// Config contains the collaborators of a Verifier.
type Config struct {
	Index    archive.Index
	Blobs    blobstore.Store
	Packager *packager.Packager
	Access   *access.Policy
	Keys     PublicKeys // optional; signed archives fail without it

	Audit   audit.Sink         // optional
	Metrics *metrics.Collector // optional
	Clock   func() time.Time   // defaults to time.Now
}

// Request asks for verification of one archive.
type Request struct {
	ArchiveID string
	Caller    access.Identity
}

// Report is the result of a verification. A failed check is reported here,
// not as an error.
type Report struct {
	ArchiveID        string `json:"archive_id"`
	ChecksumValid    bool   `json:"checksum_valid"`
	ExpectedChecksum string `json:"expected_checksum"`
	ActualChecksum   string `json:"actual_checksum,omitempty"`

	// SignatureValid is nil when the archive is unsigned.
	SignatureValid *bool `json:"signature_valid,omitempty"`

	// Decryptable is nil when the archive is not encrypted or no key for
	// its scheme is configured.
	Decryptable *bool `json:"decryptable,omitempty"`

	Issues     []string  `json:"issues,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Passed reports whether every check that ran succeeded.
func (r *Report) Passed() bool {
	if !r.ChecksumValid {
		return false
	}
	if r.SignatureValid != nil && !*r.SignatureValid {
		return false
	}
	if r.Decryptable != nil && !*r.Decryptable {
		return false
	}
	return true
}

// Verifier checks archive integrity.
type Verifier struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a verifier.
func New(cfg Config) *Verifier {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Access == nil {
		cfg.Access, _ = access.NewPolicy(nil)
	}
	return &Verifier{
		cfg:    cfg,
		logger: slog.Default().With("component", "archive.verify"),
	}
}

// Verify recomputes the payload checksum, checks the signature of signed
// archives and the decryptability of encrypted ones. The caller must hold
// archive:verify; otherwise nothing is read.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Report, error) {
	report, err := v.verify(ctx, req)

	switch {
	case err != nil && archive.Classify(err) == archive.OutcomeRejected:
		v.cfg.Metrics.RecordVerification("rejected")
	case err != nil:
		v.cfg.Metrics.RecordVerification("error")
	case report.Passed():
		v.cfg.Metrics.RecordVerification("pass")
	default:
		v.cfg.Metrics.RecordVerification("fail")
	}
	return report, err
}

func (v *Verifier) verify(ctx context.Context, req Request) (*Report, error) {
	if req.ArchiveID == "" {
		return nil, archive.Validationf(op, "archive id is required")
	}
	ctx = logging.WithArchiveID(logging.WithActor(ctx, req.Caller.ID), req.ArchiveID)

	if err := v.cfg.Access.Require(req.Caller, access.PermArchiveVerify, op); err != nil {
		v.audit(ctx, req, audit.OutcomeDenied, nil)
		return nil, err
	}

	rec, err := v.cfg.Index.Get(ctx, req.ArchiveID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, archive.NewError(archive.KindNotFound, op, req.ArchiveID, err)
		}
		return nil, archive.NewError(archive.KindInternal, op, req.ArchiveID, err)
	}

	report := &Report{
		ArchiveID:        rec.ID,
		ExpectedChecksum: rec.Checksum,
		VerifiedAt:       v.cfg.Clock().UTC(),
	}

	data, err := v.cfg.Blobs.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, archive.ErrBlobNotFound):
		report.Issues = append(report.Issues, "payload is missing from storage")
	case err != nil:
		return nil, archive.NewError(archive.KindInternal, op, rec.ID, fmt.Errorf("read payload: %w", err))
	default:
		report.ActualChecksum = packager.Checksum(data)
		report.ChecksumValid = report.ActualChecksum == rec.Checksum
		if !report.ChecksumValid {
			report.Issues = append(report.Issues, "checksum mismatch: payload differs from catalog")
		}
	}

	if rec.Signature != "" {
		valid := v.checkSignature(rec, report)
		report.SignatureValid = &valid
	}

	if rec.Encrypted && report.ChecksumValid {
		v.checkDecryption(rec, data, report)
	}

	outcome := audit.OutcomeSuccess
	if !report.Passed() {
		outcome = audit.OutcomeIntegrityFailure
	}
	v.audit(ctx, req, outcome, map[string]string{"checksum_valid": fmt.Sprint(report.ChecksumValid)})

	if report.Passed() {
		v.logger.InfoContext(ctx, "archive verified", "entity_type", rec.EntityType)
	} else {
		v.logger.WarnContext(ctx, "archive failed verification", "entity_type", rec.EntityType, "issues", report.Issues)
	}
	return report, nil
}

func (v *Verifier) checkSignature(rec *archive.ArchiveRecord, report *Report) bool {
	if v.cfg.Keys == nil {
		report.Issues = append(report.Issues, "archive is signed but no keyring is configured")
		return false
	}
	pub, err := v.cfg.Keys.PublicKey(rec.SigningKeyID)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("signing key %q unavailable: %v", rec.SigningKeyID, err))
		return false
	}
	if !packager.VerifySignature(pub, rec.Checksum, rec.Signature) {
		report.Issues = append(report.Issues, "signature does not match catalog checksum")
		return false
	}
	return true
}

func (v *Verifier) checkDecryption(rec *archive.ArchiveRecord, data []byte, report *Report) {
	header, err := packager.Inspect(data)
	if err != nil {
		ok := false
		report.Decryptable = &ok
		report.Issues = append(report.Issues, fmt.Sprintf("unreadable header: %v", err))
		return
	}
	if !v.cfg.Packager.CanDecrypt(header.Encryption) {
		report.Issues = append(report.Issues, fmt.Sprintf("no key configured for %s; decryption not checked", header.Encryption))
		return
	}
	_, err = v.cfg.Packager.Unpack(rec.ID, data)
	ok := err == nil
	report.Decryptable = &ok
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("payload does not decrypt: %v", err))
	}
}

func (v *Verifier) audit(ctx context.Context, req Request, outcome audit.Outcome, detail map[string]string) {
	if v.cfg.Audit == nil {
		return
	}
	err := v.cfg.Audit.LogEvent(ctx, audit.Event{
		Action:    audit.ActionVerify,
		ActorID:   req.Caller.ID,
		TargetID:  req.ArchiveID,
		Timestamp: v.cfg.Clock().UTC(),
		Outcome:   outcome,
		Detail:    detail,
	})
	if err != nil {
		v.logger.ErrorContext(ctx, "failed to write audit event", "error", err)
	}
}
