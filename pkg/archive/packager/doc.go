// Package packager converts record sets to archive payloads and back.
//
// A payload is a fixed 15-byte header followed by the body:
//
//	"KARC" | version | compression | encryption | uncompressed length (uint64 BE) | body
//
// The body is the deterministic CBOR encoding of the entity type and
// records, compressed with zstd or lz4 and then optionally sealed with
// XChaCha20-Poly1305 or age. The header and archive id are authenticated as
// additional data, so a payload cannot be replayed under another archive.
//
// The catalog checksum is the SHA-256 of the complete payload. When a
// Signer is configured, the checksum is signed with ed25519.
package packager
