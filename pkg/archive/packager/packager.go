package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"archival-hq/keeper/pkg/archive"
)

// Options configures a Packager.
type Options struct {
	// Compression is the requested compression. Bodies that do not shrink
	// are stored uncompressed.
	Compression CompressionTag

	// Cipher encrypts new payloads. Nil disables encryption.
	Cipher Cipher

	// Decrypters open payloads sealed with a scheme other than Cipher's,
	// e.g. after switching schemes. Cipher is always tried for its own tag.
	Decrypters []Cipher

	// Signer signs new payload checksums. Nil disables signing.
	Signer *Signer
}

// MaxUncompressedSize bounds the serialized size accepted by Unpack.
const MaxUncompressedSize = 8 << 30

// Packager turns record sets into self-describing archive payloads and
// back. It is safe for concurrent use.
type Packager struct {
	compression CompressionTag
	cipher      Cipher
	decrypters  map[EncryptionTag]Cipher
	signer      *Signer
	logger      *slog.Logger
}

// New creates a Packager.
func New(opts Options) *Packager {
	p := &Packager{
		compression: opts.Compression,
		cipher:      opts.Cipher,
		decrypters:  make(map[EncryptionTag]Cipher),
		signer:      opts.Signer,
		logger:      slog.Default().With("component", "archive.packager"),
	}
	for _, c := range opts.Decrypters {
		p.decrypters[c.Tag()] = c
	}
	if opts.Cipher != nil {
		p.decrypters[opts.Cipher.Tag()] = opts.Cipher
	}
	return p
}

// PackRequest is the input to Pack.
type PackRequest struct {
	ArchiveID  string
	EntityType string
	Records    []*archive.Record
}

// Package is a packed archive payload and the metadata derived from it.
type Package struct {
	Data              []byte
	Checksum          string
	SizeBytes         int64
	UncompressedBytes int64
	RecordCount       int
	Compression       string
	Encrypted         bool
	EncryptionScheme  string
	Signature         string
	SigningKeyID      string
}

// Contents is an unpacked archive.
type Contents struct {
	EntityType string
	Records    []*archive.Record
}

// Pack serializes, compresses and optionally encrypts and signs records.
// Without a randomized cipher, identical requests produce identical bytes.
func (p *Packager) Pack(req PackRequest) (*Package, error) {
	if len(req.Records) == 0 {
		return nil, archive.ErrEmptyRecordSet
	}
	if req.ArchiveID == "" {
		return nil, fmt.Errorf("%w: archive id is required", archive.ErrSerialization)
	}

	plain, err := encodeBody(req.EntityType, req.Records)
	if err != nil {
		return nil, err
	}

	compressed, tag, err := compress(plain, p.compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrSerialization, err)
	}

	header := Header{
		Version:          FormatVersion,
		Compression:      tag,
		Encryption:       EncryptionNone,
		UncompressedSize: uint64(len(plain)),
	}
	if p.cipher != nil {
		header.Encryption = p.cipher.Tag()
	}
	headerBytes := header.MarshalBinary()

	bodyBytes := compressed
	if p.cipher != nil {
		bodyBytes, err = p.cipher.Seal(compressed, additionalData(headerBytes, req.ArchiveID))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", archive.ErrEncryption, err)
		}
	}

	data := make([]byte, 0, len(headerBytes)+len(bodyBytes))
	data = append(data, headerBytes...)
	data = append(data, bodyBytes...)

	pkg := &Package{
		Data:              data,
		Checksum:          Checksum(data),
		SizeBytes:         int64(len(data)),
		UncompressedBytes: int64(len(plain)),
		RecordCount:       len(req.Records),
		Compression:       tag.String(),
	}
	if p.cipher != nil {
		pkg.Encrypted = true
		pkg.EncryptionScheme = p.cipher.Tag().String()
	}
	if p.signer != nil {
		pkg.Signature = p.signer.Sign(pkg.Checksum)
		pkg.SigningKeyID = p.signer.KeyID()
	}

	p.logger.Debug("archive packed",
		"archive_id", req.ArchiveID,
		"entity_type", req.EntityType,
		"record_count", pkg.RecordCount,
		"uncompressed_bytes", pkg.UncompressedBytes,
		"size_bytes", pkg.SizeBytes,
		"compression", pkg.Compression,
		"encrypted", pkg.Encrypted,
	)

	return pkg, nil
}

// Unpack reverses Pack. Failures wrap ErrCorruptPayload or ErrDecryption.
func (p *Packager) Unpack(archiveID string, data []byte) (*Contents, error) {
	header, payload, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	if header.UncompressedSize > MaxUncompressedSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds limit", archive.ErrCorruptPayload, header.UncompressedSize)
	}

	if header.Encryption != EncryptionNone {
		c, ok := p.decrypters[header.Encryption]
		if !ok {
			return nil, fmt.Errorf("%w: no key configured for %s", archive.ErrDecryption, header.Encryption)
		}
		payload, err = c.Open(payload, additionalData(data[:HeaderSize], archiveID))
		if err != nil {
			return nil, err
		}
	}

	plain, err := decompress(payload, header.Compression, int(header.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrCorruptPayload, err)
	}

	b, err := decodeBody(plain)
	if err != nil {
		return nil, err
	}
	return &Contents{EntityType: b.EntityType, Records: b.Records}, nil
}

// Inspect parses only the payload header.
func Inspect(data []byte) (Header, error) {
	h, _, err := ParseHeader(data)
	return h, err
}

// CanDecrypt reports whether the packager holds a key for tag.
func (p *Packager) CanDecrypt(tag EncryptionTag) bool {
	if tag == EncryptionNone {
		return true
	}
	_, ok := p.decrypters[tag]
	return ok
}

// Checksum returns the hex SHA-256 of a stored payload.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func additionalData(header []byte, archiveID string) []byte {
	aad := make([]byte, 0, len(header)+len(archiveID))
	aad = append(aad, header...)
	return append(aad, archiveID...)
}
